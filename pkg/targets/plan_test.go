package targets

import (
	_ "embed"
	"errors"
	"strings"
	"testing"

	"github.com/grafana/netverify/pkg/probe"
)

//go:embed testdata/plan.yml
var examplePlan string

func TestParsePlan(t *testing.T) {
	plan, err := ParsePlan(strings.NewReader(examplePlan))
	if err != nil {
		t.Fatal(err)
	}

	if e, g := "sandbox egress", plan.Name; e != g {
		t.Fatalf("expecting plan name %q, got %q", e, g)
	}
	if e, g := 7, len(plan.Targets); e != g {
		t.Fatalf("expecting %d targets, got %d", e, g)
	}

	t.Run("default to sidecar", func(t *testing.T) {
		if e, g := probe.KindSidecar, plan.Targets[2].Kind; e != g {
			t.Fatalf("expecting kind %s, got %s", e, g)
		}
	})

	t.Run("quoted scalars", func(t *testing.T) {
		tt := plan.Targets[4]
		if e, g := probe.KindExternalIP, tt.Kind; e != g {
			t.Errorf("expecting kind %s, got %s", e, g)
		}
		if e, g := probe.ExpectBlock, tt.Expect; e != g {
			t.Errorf("expecting expect %s, got %s", e, g)
		}
	})

	t.Run("signature implies expectation", func(t *testing.T) {
		tt := plan.Targets[1].Target()
		if e, g := probe.Signature("verify_env_args_success"), tt.Expect; e != g {
			t.Fatalf("expecting %v, got %v", e, g)
		}
	})

	t.Run("entries", func(t *testing.T) {
		entries, skipped := plan.Entries()
		if e, g := 6, len(entries); e != g {
			t.Fatalf("expecting %d entries, got %d", e, g)
		}
		if e, g := 1, len(skipped); e != g {
			t.Fatalf("expecting %d skipped, got %d", e, g)
		}
		if !errors.Is(skipped[0], probe.ErrInvalidTarget) || !errors.Is(skipped[0], ErrMalformedRecord) {
			t.Fatalf("unexpected skip reason %v", skipped[0])
		}

		// unnamed targets are named after themselves
		if e, g := "url facebook.com:443 (expect block)", entries[5].Name; e != g {
			t.Fatalf("expecting name %q, got %q", e, g)
		}
	})
}

func TestParsePlan_Strict(t *testing.T) {
	in := `
plan:
  name: typo
  targets:
    - kind: ip
      host: 1.1.1.1
      prot: 443
`
	if _, err := ParsePlan(strings.NewReader(in)); err == nil {
		t.Fatal("expecting unknown field to be rejected")
	}
}

func TestParsePlan_InvalidKind(t *testing.T) {
	in := `
plan:
  targets:
    - kind: ftp
      host: ftp.example.com
      port: 21
`
	_, err := ParsePlan(strings.NewReader(in))
	if err == nil || !strings.Contains(err.Error(), ErrInvalidKind.Error()) {
		t.Fatalf("expecting error %v, got %v", ErrInvalidKind, err)
	}
}

func TestKind_UnmarshalYAML(t *testing.T) {
	tests := map[string]struct {
		exp probe.Kind
		err error
	}{
		"":          {probe.KindSidecar, nil},
		"sidecar":   {probe.KindSidecar, nil},
		"DOCKER":    {probe.KindSidecar, nil},
		"ip":        {probe.KindExternalIP, nil},
		`"IP"`:      {probe.KindExternalIP, nil},
		"url":       {probe.KindExternalURL, nil},
		"'url'":     {probe.KindExternalURL, nil},
		"host":      {probe.KindExternalURL, nil},
		"satellite": {probe.KindSidecar, ErrInvalidKind},
	}

	for in, tt := range tests {
		t.Run("in="+in, func(t *testing.T) {
			var got probe.Kind

			err := yamlUnmarshalKind(&got, []byte(in))
			if !errors.Is(err, tt.err) {
				t.Fatalf("expecting error %v, got %v", tt.err, err)
			}
			if tt.exp != got {
				t.Fatalf("expecting kind %s, got %s", tt.exp, got)
			}
		})
	}
}

func TestExpectMode_UnmarshalYAML(t *testing.T) {
	tests := map[string]struct {
		exp probe.ExpectMode
		err error
	}{
		"":        {probe.ExpectConnect, nil},
		"connect": {probe.ExpectConnect, nil},
		"block":   {probe.ExpectBlock, nil},
		`"BLOCK"`: {probe.ExpectBlock, nil},
		"false":   {probe.ExpectBlock, nil},
		"maybe":   {probe.ExpectConnect, ErrInvalidExpectation},
	}

	for in, tt := range tests {
		t.Run("in="+in, func(t *testing.T) {
			var got probe.ExpectMode

			err := yamlUnmarshalExpectMode(&got, []byte(in))
			if !errors.Is(err, tt.err) {
				t.Fatalf("expecting error %v, got %v", tt.err, err)
			}
			if tt.exp != got {
				t.Fatalf("expecting mode %s, got %s", tt.exp, got)
			}
		})
	}
}
