package routerconfig

import (
	"testing"
	"time"

	"github.com/eugenetaranov/router-reset-dns/api/schemas"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func loadFixture(t *testing.T) *Document {
	t.Helper()
	doc, err := Load("testdata/models.yaml")
	require.NoError(t, err)
	return doc
}

func TestLoad(t *testing.T) {
	doc := loadFixture(t)

	assert.Equal(t, []string{"empty", "groupA", "zte"}, doc.GroupNames())
	assert.Equal(t, ModelList{"ZXHN H108N", "2741"}, doc.Models["zte"])
	assert.Empty(t, doc.Models["empty"])

	g := doc.Routers["groupA"]
	require.NotNil(t, g)
	assert.False(t, g.Login.Basic)
	assert.False(t, g.Login.PasswordOnly())
	assert.Equal(t, schemas.ID("Frm_Username"), g.Login.Username.Locator())
	assert.Equal(t, "mainFrame", g.Login.CheckLogin.Frame)
	assert.Equal(t, "mainFrame", g.Frame)
	assert.True(t, g.SwitchToParentFrame)

	want := []schemas.ActionStep{
		{Kind: schemas.StepClick, Locator: schemas.ID("mmNet")},
		{Kind: schemas.StepFrame, Frame: "contentFrame"},
		{Kind: schemas.StepClick, Locator: schemas.XPath("//a[@id='smLanDhcp']")},
		{Kind: schemas.StepSelect, Locator: schemas.ID("dhcpMode"), Value: "1"},
	}
	if diff := cmp.Diff(want, ActionSteps(g.Steps)); diff != "" {
		t.Errorf("steps mismatch (-want +got):\n%s", diff)
	}

	require.NotNil(t, g.DNS)
	require.Len(t, g.DNS.Servers, 2)
	assert.Equal(t, 1, g.DNS.Servers[0].Index, "dns fields are ordered by index, not by document order")
	assert.Equal(t, schemas.ID("DNSServer1"), g.DNS.Servers[0].Element.Locator())
	assert.Equal(t, "1", g.DNS.UpdateDHCPMode.ValueString())
	require.NotNil(t, g.DNS.Submit.Wait)
	assert.Equal(t, 3*time.Second, *g.DNS.Submit.Wait)

	pr := g.PasswordReset
	require.NotNil(t, pr)
	assert.Equal(t, "mainFrame", pr.Goto.Frame)
	assert.Nil(t, pr.Form.Input.CurrentUsername)
	assert.Equal(t, schemas.ID("Frm_ConfirmPass"), pr.Form.Input.NewPasswordConfirm.Locator())
	assert.True(t, pr.Form.AlertConfirm)
	require.NotNil(t, pr.Reboot)
	assert.True(t, pr.Reboot.AlertConfirm)

	zte := doc.Routers["zte"]
	assert.True(t, zte.Login.Basic)
	assert.True(t, zte.DNS.SplitOctets)
	assert.Equal(t, []schemas.Locator{
		schemas.ID("dns2_1"), schemas.ID("dns2_2"), schemas.ID("dns2_3"), schemas.ID("dns2_4"),
	}, zte.DNS.Servers[1].Element.Locators())
	assert.Nil(t, zte.DNS.Submit.Wait)
	assert.Nil(t, zte.PasswordReset)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load("testdata/does-not-exist.yaml")
	require.Error(t, err)
	assert.Equal(t, schemas.KindConfigInvalid, schemas.KindOf(err))
}

func TestParse_Errors(t *testing.T) {
	tests := []struct {
		name string
		doc  string
		want string
	}{
		{"no models", "routers: {}\n", "no models section"},
		{"unknown locator type", "models: {a: [M]}\nrouters:\n  a:\n    steps:\n      - {type: css, location: x}\n", `unsupported locator type "css"`},
		{"step without location", "models: {a: [M]}\nrouters:\n  a:\n    steps:\n      - {type: id}\n", "step needs a location"},
		{"unknown dns key", "models: {a: [M]}\nrouters:\n  a:\n    dns:\n      primary: {type: id, location: x}\n", `unknown dns key "primary"`},
		{"zero dns index", "models: {a: [M]}\nrouters:\n  a:\n    dns:\n      dns_0: {type: id, location: x}\n", "invalid dns field index"},
		{"negative wait", "models: {a: [M]}\nrouters:\n  a:\n    dns:\n      submit: {type: id, location: x, wait: -1}\n", "wait must not be negative"},
		{"location mapping", "models: {a: [M]}\nrouters:\n  a:\n    login:\n      password: {type: id, location: {a: b}}\n", "location must be a string or a list"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.doc))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
			assert.Equal(t, schemas.KindConfigInvalid, schemas.KindOf(err))
		})
	}
}

func TestResolve(t *testing.T) {
	doc := &Document{
		Models: map[string]ModelList{
			"groupA": {"ModelX", "ModelY"},
			"groupB": {"ModelZ", "Shared"},
			"groupC": {"Shared"},
		},
		Routers: map[string]*Group{"groupA": {}, "groupB": {}},
	}

	key, err := doc.Resolve("ModelX")
	require.NoError(t, err)
	assert.Equal(t, "groupA", key)

	_, err = doc.Resolve("Unknown")
	require.Error(t, err)
	out := schemas.OutcomeFromError(err)
	assert.Equal(t, schemas.Skipped(schemas.KindConfigResolution, "model not found"), out)

	_, err = doc.Resolve("Shared")
	require.Error(t, err)
	assert.Equal(t, schemas.KindConfigResolution, schemas.KindOf(err))
	assert.Contains(t, err.Error(), "model Shared matches multiple groups: groupB, groupC")

	// Model names are matched exactly.
	_, err = doc.Resolve("modelx")
	assert.Error(t, err)

	key, g, err := doc.ResolveGroup("ModelY")
	require.NoError(t, err)
	assert.Equal(t, "groupA", key)
	assert.Same(t, doc.Routers["groupA"], g)

	doc.Models["groupD"] = ModelList{"Orphan"}
	_, _, err = doc.ResolveGroup("Orphan")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "group groupD has no routers section")
}

func TestCheck(t *testing.T) {
	doc := loadFixture(t)
	issues := doc.Check()

	assert.True(t, issues.HasErrors())
	var got []string
	for _, i := range issues {
		got = append(got, i.String())
	}
	assert.Contains(t, got, "warning: models.empty: group has no member models")
	assert.Contains(t, got, "error: models.empty: group has no routers section")
	assert.Contains(t, got, "warning: zte.dns.submit: no explicit wait, the configured default applies")
	assert.Equal(t, 1, issues.Count(SeverityError))
}

func TestCheck_GroupProblems(t *testing.T) {
	src := `
models:
  a: [M1, Shared]
  b: [Shared]
routers:
  a:
    login:
      submit: {type: id, location: go}
    dns:
      split_octets: true
      dns_1: {type: id, location: [o1, o2, o3]}
      dns_3: {type: id, location: [p1, p2, p3, p4]}
      check_dhcp_mode: {type: id, location: mode}
      submit: {type: id, location: save, wait: 2}
  b:
    login: {basic: true}
  stray:
    login: {basic: true}
`
	doc, err := Parse([]byte(src))
	require.NoError(t, err)

	var got []string
	for _, i := range doc.Check() {
		got = append(got, i.String())
	}
	assert.Contains(t, got, "error: models: model Shared matches multiple groups: a, b")
	assert.Contains(t, got, "error: a.login.password: is required")
	assert.Contains(t, got, "error: a.dns.dns_1: split_octets needs 4 locations, got 3")
	assert.Contains(t, got, "error: a.dns.dns_3: dns fields must be numbered dns_1..dns_2 without gaps")
	assert.Contains(t, got, "error: a.dns.update_dhcp_mode: value is required when check_dhcp_mode is set")
	assert.Contains(t, got, "warning: b: group defines neither dns nor password_reset")
	assert.Contains(t, got, "warning: routers.stray: group is not referenced by models")
}

func FuzzLocationDecode(f *testing.F) {
	f.Add("location: LANUrl\n")
	f.Add("location: [a, b, c, d]\n")
	f.Add("location: 12\n")
	f.Add("location: {x: 1}\n")
	f.Add("location:\n")
	f.Fuzz(func(t *testing.T, src string) {
		var v struct {
			Location Location `yaml:"location"`
		}
		if err := yaml.Unmarshal([]byte(src), &v); err != nil {
			return
		}
		// Whatever decoded must survive a round trip through the list form.
		out, err := yaml.Marshal(struct {
			Location []string `yaml:"location"`
		}{Location: v.Location})
		require.NoError(t, err)

		var again struct {
			Location Location `yaml:"location"`
		}
		require.NoError(t, yaml.Unmarshal(out, &again))
		require.Len(t, again.Location, len(v.Location))
		for i := range v.Location {
			assert.Equal(t, v.Location[i], again.Location[i])
		}
	})
}
