// Package useragent hands out realistic browser user-agent strings built by
// gofakeit.
package useragent

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"sort"
	"strconv"
	"strings"

	"github.com/brianvoe/gofakeit/v7"
)

// Random selects any supported browser.
const Random = "random"

var ErrUnknownBrowser = errors.New("unknown browser")

var aliases = map[string]string{
	"google":           "chrome",
	"googlechrome":     "chrome",
	"ff":               "firefox",
	"ie":               "edge",
	"msie":             "edge",
	"internetexplorer": "edge",
}

type agentFunc func(f *gofakeit.Faker) string

var agents = map[string]agentFunc{
	"chrome":  (*gofakeit.Faker).ChromeUserAgent,
	"firefox": (*gofakeit.Faker).FirefoxUserAgent,
	"safari":  (*gofakeit.Faker).SafariUserAgent,
	"opera":   (*gofakeit.Faker).OperaUserAgent,
	"edge":    edgeUserAgent,
}

// gofakeit has no Edge agent; Edge is Chromium with an Edg/ product token.
func edgeUserAgent(f *gofakeit.Faker) string {
	major := f.Number(110, 130)
	build := f.Number(1500, 2900)
	return f.ChromeUserAgent() + " Edg/" + strconv.Itoa(major) + ".0." + strconv.Itoa(build) + ".0"
}

type Generator struct {
	faker    *gofakeit.Faker
	browsers []string
}

// NewGenerator returns a generator seeded from a crypto source.
func NewGenerator() (*Generator, error) {
	return newGenerator(gofakeit.New(0))
}

// NewGeneratorWithSource is NewGenerator with a caller supplied source, for
// reproducible picks.
func NewGeneratorWithSource(src rand.Source) (*Generator, error) {
	if src == nil {
		return nil, errors.New("user agent source is nil")
	}
	return newGenerator(gofakeit.NewFaker(src, true))
}

func newGenerator(faker *gofakeit.Faker) (*Generator, error) {
	browsers := make([]string, 0, len(agents))
	for name := range agents {
		browsers = append(browsers, name)
	}
	sort.Strings(browsers)

	return &Generator{faker: faker, browsers: browsers}, nil
}

// Browsers returns the canonical browser names, sorted.
func (g *Generator) Browsers() []string {
	out := make([]string, len(g.browsers))
	copy(out, g.browsers)
	return out
}

// Get returns a user agent for name. Lookup ignores case, spaces and
// underscores and understands common aliases such as "ff" and "google chrome".
func (g *Generator) Get(name string) (string, error) {
	key := Normalize(name)
	if key == "" {
		return "", fmt.Errorf("%w: %q", ErrUnknownBrowser, name)
	}

	if key == Random {
		key = g.faker.RandomString(g.browsers)
	}

	agent, ok := agents[key]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownBrowser, name)
	}
	return agent(g.faker), nil
}

// Normalize maps a requested browser name onto a supported browser key.
func Normalize(name string) string {
	key := strings.ToLower(name)
	key = strings.ReplaceAll(key, " ", "")
	key = strings.ReplaceAll(key, "_", "")
	if alias, ok := aliases[key]; ok {
		return alias
	}
	return key
}
