package detector

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/cse-daily-fetcher/internal/discover"
	"github.com/JakeFAU/cse-daily-fetcher/internal/report"
)

func TestHeuristic_ShouldPromote_EmptyBody(t *testing.T) {
	t.Parallel()

	h := NewHeuristic(100, nil)
	require.True(t, h.ShouldPromote(report.FetchResponse{StatusCode: 200}))
}

func TestHeuristic_ShouldPromote_AngularShell(t *testing.T) {
	t.Parallel()

	h := NewHeuristic(100, nil)
	resp := report.FetchResponse{
		StatusCode: 200,
		Body:       []byte(`<html><body><app-root ng-version="15.2.0"></app-root></body></html>`),
	}
	require.True(t, h.ShouldPromote(resp))
}

func TestHeuristic_ShouldPromote_ScriptDensity(t *testing.T) {
	t.Parallel()

	h := NewHeuristic(1000, nil)
	resp := report.FetchResponse{
		StatusCode: 200,
		Body:       []byte(`<html><script>var a=1;</script><p>t</p></html>`),
	}
	require.True(t, h.ShouldPromote(resp))
}

func TestHeuristic_ShouldPromote_PlainPage(t *testing.T) {
	t.Parallel()

	h := NewHeuristic(10, nil)
	resp := report.FetchResponse{
		StatusCode: 200,
		Body:       []byte(`<html><body><div class="rules-block">ok</div></body></html>`),
	}
	require.False(t, h.ShouldPromote(resp))
}

func TestHeuristic_ShouldPromote_DisabledForNon2xx(t *testing.T) {
	t.Parallel()

	h := NewHeuristic(100, nil)
	resp := report.FetchResponse{
		StatusCode: 404,
		Body:       []byte("not found"),
	}
	require.False(t, h.ShouldPromote(resp))
}

func TestHeuristic_ShouldPromote_WithLocator(t *testing.T) {
	t.Parallel()

	h := NewHeuristic(0, discover.NewLocator())
	withBlock := report.FetchResponse{
		StatusCode: 200,
		Body:       []byte(`<html><body><div class="rules-block">x</div></body></html>`),
	}
	require.False(t, h.ShouldPromote(withBlock))

	missing := report.FetchResponse{
		StatusCode: 200,
		Body:       []byte(`<html><body><p>loading</p></body></html>`),
	}
	require.True(t, h.ShouldPromote(missing))
}

func TestHeuristic_ShouldPromote_ShellSignalsBeatLocator(t *testing.T) {
	t.Parallel()

	h := NewHeuristic(1000, discover.NewLocator())
	angular := report.FetchResponse{
		StatusCode: 200,
		Body:       []byte(`<app-root ng-version="15"><div class="rules-block">x</div></app-root>`),
	}
	require.True(t, h.ShouldPromote(angular))

	scripted := report.FetchResponse{
		StatusCode: 200,
		Body:       []byte(`<html><script>var a=1;var b=2;</script><div class="rules-block">x</div></html>`),
	}
	require.True(t, h.ShouldPromote(scripted))
}
