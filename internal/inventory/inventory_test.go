package inventory

import (
	"strings"
	"testing"

	"github.com/eugenetaranov/router-reset-dns/api/schemas"
	"github.com/eugenetaranov/router-reset-dns/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func defaultLayout() config.InventoryConfig {
	return config.NewDefaultConfig().Inventory()
}

func TestLoad(t *testing.T) {
	rows, err := Load("testdata/routers.csv", defaultLayout())
	require.NoError(t, err)
	require.Len(t, rows, 4)

	assert.Equal(t, 0, rows[0].Index)
	assert.Equal(t, 2, rows[0].Line, "header occupies line 1")
	assert.Equal(t, "10.0.0.1", rows[0].Fields[0], "byte order mark is stripped")

	rec, err := Record(rows[0], defaultLayout().Columns)
	require.NoError(t, err)
	assert.Equal(t, schemas.DeviceRecord{
		Row: 0, Address: "10.0.0.1", Port: "80", Username: "admin", Password: "pw", ModelName: "ModelX",
	}, rec)

	rec, err = Record(rows[1], defaultLayout().Columns)
	require.NoError(t, err)
	assert.Empty(t, rec.Username)
	assert.Equal(t, "secret", rec.Password)
	assert.Equal(t, "ZXHN H108N", rec.ModelName)
	assert.Equal(t, "https", rec.Scheme())

	rec, err = Record(rows[2], defaultLayout().Columns)
	require.NoError(t, err)
	assert.Equal(t, "root", rec.Username)
	assert.Equal(t, "pa:ss", rec.Password)

	_, err = Record(rows[3], defaultLayout().Columns)
	require.Error(t, err)
	assert.Equal(t, schemas.KindInventoryRow, schemas.KindOf(err))
	assert.Contains(t, err.Error(), "row has 2 columns, need at least 6")
}

func TestRead_CustomLayout(t *testing.T) {
	layout := config.InventoryConfig{
		Delimiter:  ",",
		SkipHeader: false,
		Columns:    config.InventoryColumns{Address: 1, Port: 2, Credentials: 3, Model: 0},
	}
	src := "ModelX,192.168.1.1,80,admin:pw\n\"Model, Y\",192.168.1.2,443,pw\n"

	rows, err := Read(strings.NewReader(src), layout)
	require.NoError(t, err)
	require.Len(t, rows, 2)

	rec, err := Record(rows[1], layout.Columns)
	require.NoError(t, err)
	assert.Equal(t, "Model, Y", rec.ModelName)
	assert.Equal(t, "192.168.1.2", rec.Address)
	assert.Equal(t, 1, rec.Row)
}

func TestRead_DropsIllFormedBytes(t *testing.T) {
	rows, err := Read(strings.NewReader("10.0.0.1;80;x;y;admin:p\xffw;Model\xfeX\n"), config.InventoryConfig{Delimiter: ";"})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "admin:pw", rows[0].Fields[4])
	assert.Equal(t, "ModelX", rows[0].Fields[5])
}

func TestWindow(t *testing.T) {
	rows := make([]Row, 5)
	for i := range rows {
		rows[i].Index = i
	}
	assert.Len(t, Window(rows, 0, 0), 5)
	got := Window(rows, 2, 0)
	require.Len(t, got, 3)
	assert.Equal(t, 2, got[0].Index)

	got = Window(rows, 3, 1)
	require.Len(t, got, 1)
	assert.Equal(t, 3, got[0].Index)

	assert.Empty(t, Window(rows, 5, 0))
	assert.Empty(t, Window(rows, 10, 1))
	assert.Len(t, Window(rows, -1, 0), 5)
}

func TestParseCredentials(t *testing.T) {
	tests := []struct {
		field     string
		user      string
		pass      string
		malformed bool
	}{
		{field: "admin:pw", user: "admin", pass: "pw"},
		{field: "pw", user: "", pass: "pw"},
		{field: " admin:pw ", user: "admin", pass: "pw"},
		{field: "admin:p:w", user: "admin", pass: "p:w"},
		{field: ":pw", malformed: true},
		{field: "admin:", malformed: true},
		{field: ":", malformed: true},
		{field: "", malformed: true},
		{field: "   ", malformed: true},
	}
	for _, tt := range tests {
		t.Run(tt.field, func(t *testing.T) {
			user, pass, err := ParseCredentials(tt.field)
			if tt.malformed {
				require.Error(t, err)
				assert.Equal(t, schemas.KindCredentialParse, schemas.KindOf(err))
				assert.Equal(t, schemas.StatusSkipped, schemas.OutcomeFromError(err).Status)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.user, user)
			assert.Equal(t, tt.pass, pass)
		})
	}
}

func FuzzParseCredentials(f *testing.F) {
	for _, seed := range []string{"admin:pw", "pw", ":", "a:b:c", "", " : "} {
		f.Add(seed)
	}
	f.Fuzz(func(t *testing.T, field string) {
		user, pass, err := ParseCredentials(field)
		if err != nil {
			assert.Equal(t, schemas.KindCredentialParse, schemas.KindOf(err))
			return
		}
		assert.NotEmpty(t, pass)
		trimmed := strings.TrimSpace(field)
		if user == "" {
			assert.Equal(t, trimmed, pass)
			assert.NotContains(t, pass, ":")
			return
		}
		assert.NotContains(t, user, ":", "split happens on the first colon")
		assert.Equal(t, trimmed, user+":"+pass)
	})
}
