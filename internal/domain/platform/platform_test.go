package platform_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/okian/smmbot/internal/domain/model"
	"github.com/okian/smmbot/internal/domain/platform"
	. "github.com/smartystreets/goconvey/convey"
)

func TestSimulatedDriver_Execute(t *testing.T) {
	Convey("Given a simulated twitter driver without latency", t, func() {
		now := time.Unix(1_700_000_000, 0)
		newDriver := func(rate float64) *platform.SimulatedDriver {
			return platform.NewSimulatedDriver(model.Twitter,
				platform.WithLatencyRange(0, 0),
				platform.WithSuccessRate(rate),
				platform.WithSeed(7),
				platform.WithClock(func() time.Time { return now }),
			)
		}

		Convey("When the success rate is 1", func() {
			resp, err := newDriver(1).Execute(context.Background(), platform.Request{Platform: model.Twitter, Type: model.Like})

			Convey("Then the response carries a prefixed id", func() {
				So(err, ShouldBeNil)
				So(resp.Success, ShouldBeTrue)
				So(resp.ID, ShouldEqual, "tw_1700000000")
				So(resp.Action, ShouldEqual, model.Like)
			})
		})

		Convey("When the success rate is 0", func() {
			resp, err := newDriver(0).Execute(context.Background(), platform.Request{Platform: model.Twitter, Type: model.Share})

			Convey("Then the failure is reported in the response, not as an error", func() {
				So(err, ShouldBeNil)
				So(resp.Success, ShouldBeFalse)
				So(resp.Code, ShouldEqual, platform.CodeAPIError)
				So(resp.ID, ShouldBeEmpty)
			})
		})

		Convey("When the success rate is 0.8 over many runs", func() {
			d := newDriver(0.8)
			ok := 0
			for i := 0; i < 2000; i++ {
				resp, err := d.Execute(context.Background(), platform.Request{Platform: model.Twitter, Type: model.Like})
				So(err, ShouldBeNil)
				if resp.Success {
					ok++
				}
			}

			Convey("Then the observed rate is close to 0.8", func() {
				So(float64(ok)/2000, ShouldAlmostEqual, 0.8, 0.05)
			})
		})
	})

	Convey("Given a driver with a long latency", t, func() {
		d := platform.NewSimulatedDriver(model.Facebook, platform.WithLatencyRange(time.Hour, 2*time.Hour))

		Convey("When the context is cancelled", func() {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
			defer cancel()
			_, err := d.Execute(ctx, platform.Request{Platform: model.Facebook, Type: model.Like})

			Convey("Then Execute returns the context error", func() {
				So(err, ShouldWrap, context.DeadlineExceeded)
			})
		})
	})
}

func TestSimulatedDriver_Health(t *testing.T) {
	Convey("Given drivers with fixed health outcomes", t, func() {
		healthy := platform.NewSimulatedDriver(model.Instagram, platform.WithHealthDelay(0), platform.WithHealthRate(1), platform.WithAccountHealthRate(1))
		sick := platform.NewSimulatedDriver(model.Instagram, platform.WithHealthDelay(0), platform.WithHealthRate(0), platform.WithAccountHealthRate(0))

		Convey("Then CheckHealth reflects the rate", func() {
			h, err := healthy.CheckHealth(context.Background())
			So(err, ShouldBeNil)
			So(h.Healthy, ShouldBeTrue)
			So(h.Status, ShouldEqual, platform.StatusHealthy)
			So(h.Platform, ShouldEqual, model.Instagram)
			So(h.ResponseTime >= 500*time.Millisecond && h.ResponseTime <= 2*time.Second, ShouldBeTrue)

			h, err = sick.CheckHealth(context.Background())
			So(err, ShouldBeNil)
			So(h.Status, ShouldEqual, platform.StatusUnhealthy)
		})

		Convey("Then CheckAccount reflects the account rate", func() {
			ok, err := healthy.CheckAccount(context.Background(), model.BotAccount{ID: "instagram_a"})
			So(err, ShouldBeNil)
			So(ok, ShouldBeTrue)

			ok, err = sick.CheckAccount(context.Background(), model.BotAccount{ID: "instagram_a"})
			So(err, ShouldBeNil)
			So(ok, ShouldBeFalse)
		})
	})
}

func TestRegistry(t *testing.T) {
	Convey("Given a registry with facebook and twitter drivers", t, func() {
		limits := platform.RateLimits{RequestsPerHour: 200, RequestsPerDay: 5000, ActionsPerMinute: 60}
		fb := platform.NewSimulatedDriver(model.Facebook, platform.WithLatencyRange(0, 0), platform.WithSuccessRate(1), platform.WithRateLimits(limits))
		tw := platform.NewSimulatedDriver(model.Twitter, platform.WithLatencyRange(0, 0), platform.WithSuccessRate(0))
		reg := platform.NewRegistry()
		reg.Register(model.Facebook, fb)
		reg.Register(model.Twitter, tw)

		Convey("When asking for a platform without driver", func() {
			_, err := reg.Execute(context.Background(), platform.Request{Platform: model.TikTok, Type: model.Like})

			Convey("Then ErrUnsupportedPlatform is returned", func() {
				So(err, ShouldWrap, platform.ErrUnsupportedPlatform)
			})
		})

		Convey("When reading rate limits", func() {
			got, err := reg.RateLimits(model.Facebook)

			Convey("Then the driver's limits are returned", func() {
				So(err, ShouldBeNil)
				So(got, ShouldResemble, limits)
				So(reg.Platforms(), ShouldResemble, []model.Platform{model.Facebook, model.Twitter})
			})
		})

		Convey("When executing on each platform", func() {
			ok, err := reg.Execute(context.Background(), platform.Request{Platform: model.Facebook, Type: model.Like})
			So(err, ShouldBeNil)
			bad, err := reg.Execute(context.Background(), platform.Request{Platform: model.Twitter, Type: model.Follow})
			So(err, ShouldBeNil)

			Convey("Then each driver answers with its own outcome", func() {
				So(ok.Success, ShouldBeTrue)
				So(bad.Success, ShouldBeFalse)
			})
		})
	})
}

func TestHTTPClient(t *testing.T) {
	Convey("Given a server that fails twice before succeeding", t, func() {
		var calls atomic.Int32
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if calls.Add(1) < 3 {
				w.WriteHeader(http.StatusBadGateway)
				return
			}
			var in map[string]string
			_ = json.NewDecoder(r.Body).Decode(&in)
			w.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(w).Encode(map[string]string{"echo": in["msg"], "ct": r.Header.Get("Content-Type")})
		}))
		defer srv.Close()

		Convey("When three attempts are allowed", func() {
			c := platform.NewHTTPClient(platform.WithBackoff(time.Millisecond))
			var out map[string]string
			err := c.Do(context.Background(), http.MethodPost, srv.URL, map[string]string{"msg": "hi"}, &out)

			Convey("Then the third attempt succeeds", func() {
				So(err, ShouldBeNil)
				So(calls.Load(), ShouldEqual, 3)
				So(out["echo"], ShouldEqual, "hi")
				So(strings.HasPrefix(out["ct"], "application/json"), ShouldBeTrue)
			})
		})

		Convey("When only two attempts are allowed", func() {
			c := platform.NewHTTPClient(platform.WithBackoff(time.Millisecond), platform.WithRetries(2))
			err := c.Do(context.Background(), http.MethodGet, srv.URL, nil, nil)

			Convey("Then ErrRequestFailed is returned", func() {
				So(err, ShouldWrap, platform.ErrRequestFailed)
				So(calls.Load(), ShouldEqual, 2)
			})
		})
	})
}
