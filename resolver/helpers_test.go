package resolver_test

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"testing"

	"ocm.software/open-component-model/bindings/go/maven/coordinate"
	"ocm.software/open-component-model/bindings/go/maven/fetch"
	"ocm.software/open-component-model/bindings/go/maven/repository"
	"ocm.software/open-component-model/bindings/go/maven/resolver"
)

const remote = "https://repo.test/maven2"

// fakeRepository serves documents from memory and counts every request.
type fakeRepository struct {
	mu    sync.Mutex
	files map[string]string
	errs  map[string]error
	calls map[string]int
	// gate blocks every request until it is closed.
	gate chan struct{}
}

func newFakeRepository() *fakeRepository {
	return &fakeRepository{
		files: map[string]string{},
		errs:  map[string]error{},
		calls: map[string]int{},
	}
}

func (f *fakeRepository) Open(ctx context.Context, url string) (*fetch.Resource, error) {
	f.mu.Lock()
	f.calls[url]++
	content, ok := f.files[url]
	err := f.errs[url]
	gate := f.gate
	f.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("get %s: status 404: %w", url, fetch.ErrNotFound)
	}
	return &fetch.Resource{
		ReadCloser: io.NopCloser(strings.NewReader(content)),
		URL:        url,
		Header:     http.Header{},
		Size:       int64(len(content)),
	}, nil
}

func (f *fakeRepository) serve(url, content string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.files[url] = content
}

func (f *fakeRepository) remove(url string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.files, url)
}

func (f *fakeRepository) fail(url string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.errs[url] = err
}

func (f *fakeRepository) count(url string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[url]
}

func (f *fakeRepository) total() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		n += c
	}
	return n
}

// publish serves a descriptor for coord in the remote repository and returns its base location.
func (f *fakeRepository) publish(coord coordinate.Coordinate, body string) string {
	base := remote + coord.Path() + coord.Artifact + "-" + coord.Version + coord.ClassifierSuffix()
	f.serve(base+".pom", body)
	return base
}

func newSession(t *testing.T, repo *fakeRepository, opts ...resolver.Option) *resolver.Session {
	t.Helper()
	list := repository.NewList(t.TempDir())
	list.Add(remote)
	return resolver.NewSession(append([]resolver.Option{
		resolver.WithRepositories(list),
		resolver.WithFetcher(repo),
	}, opts...)...)
}

type dependency struct {
	group, artifact, version string
	scope                    string
	optional                 bool
	exclusions               [][2]string
	extra                    string
}

func (d dependency) xml() string {
	var b strings.Builder
	b.WriteString("<dependency>")
	if d.group != "" {
		fmt.Fprintf(&b, "<groupId>%s</groupId>", d.group)
	}
	if d.artifact != "" {
		fmt.Fprintf(&b, "<artifactId>%s</artifactId>", d.artifact)
	}
	if d.version != "" {
		fmt.Fprintf(&b, "<version>%s</version>", d.version)
	}
	if d.scope != "" {
		fmt.Fprintf(&b, "<scope>%s</scope>", d.scope)
	}
	if d.optional {
		b.WriteString("<optional>true</optional>")
	}
	if len(d.exclusions) > 0 {
		b.WriteString("<exclusions>")
		for _, e := range d.exclusions {
			fmt.Fprintf(&b, "<exclusion><groupId>%s</groupId><artifactId>%s</artifactId></exclusion>", e[0], e[1])
		}
		b.WriteString("</exclusions>")
	}
	b.WriteString(d.extra)
	b.WriteString("</dependency>")
	return b.String()
}

func projectXML(coord coordinate.Coordinate, extra string, deps ...dependency) string {
	var b strings.Builder
	b.WriteString(`<?xml version="1.0" encoding="UTF-8"?>` + "\n")
	b.WriteString(`<project xmlns="http://maven.apache.org/POM/4.0.0">`)
	fmt.Fprintf(&b, "<groupId>%s</groupId><artifactId>%s</artifactId><version>%s</version>", coord.Group, coord.Artifact, coord.Version)
	b.WriteString(extra)
	if len(deps) > 0 {
		b.WriteString("<dependencies>")
		for _, d := range deps {
			b.WriteString(d.xml())
		}
		b.WriteString("</dependencies>")
	}
	b.WriteString("</project>")
	return b.String()
}

func dep(coord coordinate.Coordinate) dependency {
	return dependency{group: coord.Group, artifact: coord.Artifact, version: coord.Version}
}

func metadataXML(snapshot string) string {
	return `<metadata><groupId>org.example</groupId><artifactId>a</artifactId><version>1.0-SNAPSHOT</version>` +
		`<versioning>` + snapshot + `<lastUpdated>20240101010101</lastUpdated></versioning></metadata>`
}
