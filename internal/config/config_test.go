package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/dunamismax/pixelkit/internal/config"
	"github.com/smartystreets/goconvey/convey"
)

func TestLoad(t *testing.T) {
	convey.Convey("Given the config loader", t, func() {
		convey.Convey("When no overrides are present", func() {
			clearConfigEnv(t)

			cfg, err := config.Load()

			convey.Convey("Then the defaults are returned", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.API.Addr, convey.ShouldEqual, ":8080")
				convey.So(cfg.API.JPEGQuality, convey.ShouldEqual, 75)
				convey.So(cfg.API.MaxUploadBytes, convey.ShouldEqual, int64(32<<20))
				convey.So(cfg.API.CORSOrigins, convey.ShouldResemble, []string{"*"})
				convey.So(cfg.Dashboard.Debug, convey.ShouldBeTrue)
				convey.So(cfg.Dashboard.FeedURL, convey.ShouldEqual, "https://data.winnipeg.ca/resource/vrzk-mj7v.json")
				convey.So(cfg.Queue.Enabled, convey.ShouldBeFalse)
				convey.So(cfg.RateLimit.Window, convey.ShouldEqual, time.Minute)
			})
		})

		convey.Convey("When nested environment variables are set", func() {
			clearConfigEnv(t)
			t.Setenv("PIXELKIT_API__ADDR", ":9999")
			t.Setenv("PIXELKIT_API__JPEG_QUALITY", "90")
			t.Setenv("PIXELKIT_DASHBOARD__FEED_URL", "http://feed.local/data.json")
			t.Setenv("PIXELKIT_DASHBOARD__FETCH_TIMEOUT", "5s")
			t.Setenv("PIXELKIT_RATE_LIMIT__ENABLED", "true")

			cfg, err := config.Load()

			convey.Convey("Then they override the defaults", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.API.Addr, convey.ShouldEqual, ":9999")
				convey.So(cfg.API.JPEGQuality, convey.ShouldEqual, 90)
				convey.So(cfg.Dashboard.FeedURL, convey.ShouldEqual, "http://feed.local/data.json")
				convey.So(cfg.Dashboard.FetchTimeout, convey.ShouldEqual, 5*time.Second)
				convey.So(cfg.RateLimit.Enabled, convey.ShouldBeTrue)
			})
		})

		convey.Convey("When a YAML file is referenced", func() {
			clearConfigEnv(t)
			path := filepath.Join(t.TempDir(), "pixelkit.yaml")
			body := "api:\n  addr: \":7070\"\nstorage:\n  enabled: true\n  bucket: archive\n"
			if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
				t.Fatalf("write config file: %v", err)
			}
			t.Setenv("PIXELKIT_CONFIG", path)
			t.Setenv("PIXELKIT_STORAGE__BUCKET", "from-env")

			cfg, err := config.Load()

			convey.Convey("Then file values apply and env still wins", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.API.Addr, convey.ShouldEqual, ":7070")
				convey.So(cfg.Storage.Enabled, convey.ShouldBeTrue)
				convey.So(cfg.Storage.Bucket, convey.ShouldEqual, "from-env")
			})
		})

		convey.Convey("When a value is out of range", func() {
			clearConfigEnv(t)
			t.Setenv("PIXELKIT_API__JPEG_QUALITY", "0")

			_, err := config.Load()

			convey.Convey("Then validation fails", func() {
				convey.So(err, convey.ShouldNotBeNil)
				convey.So(err.Error(), convey.ShouldContainSubstring, "jpeg_quality")
			})
		})
	})
}

func clearConfigEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"PIXELKIT_CONFIG",
		"PIXELKIT_API__ADDR",
		"PIXELKIT_API__JPEG_QUALITY",
		"PIXELKIT_DASHBOARD__FEED_URL",
		"PIXELKIT_DASHBOARD__FETCH_TIMEOUT",
		"PIXELKIT_RATE_LIMIT__ENABLED",
		"PIXELKIT_STORAGE__BUCKET",
	} {
		t.Setenv(key, "")
		_ = os.Unsetenv(key)
	}
}
