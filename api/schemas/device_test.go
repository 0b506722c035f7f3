package schemas

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeviceRecord_MainPageURL(t *testing.T) {
	tests := []struct {
		name  string
		rec   DeviceRecord
		basic bool
		want  string
	}{
		{"http with port", DeviceRecord{Address: "10.0.0.1", Port: "80"}, false, "http://10.0.0.1:80/"},
		{"https on 443", DeviceRecord{Address: "10.0.0.1", Port: "443"}, false, "https://10.0.0.1:443/"},
		{"no port", DeviceRecord{Address: "router.lan"}, false, "http://router.lan/"},
		{"basic auth embeds credentials", DeviceRecord{Address: "10.0.0.1", Port: "8080", Username: "admin", Password: "pw"}, true, "http://admin:pw@10.0.0.1:8080/"},
		{"credentials ignored without basic", DeviceRecord{Address: "10.0.0.1", Port: "8080", Username: "admin", Password: "pw"}, false, "http://10.0.0.1:8080/"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.rec.MainPageURL(tt.basic))
		})
	}
}

func TestOutcomeFromError(t *testing.T) {
	t.Run("nil succeeds", func(t *testing.T) {
		assert.Equal(t, Succeeded(), OutcomeFromError(nil))
	})

	t.Run("element not found is a skip with locator reason", func(t *testing.T) {
		err := fmt.Errorf("phase failed: %w", ElementNotFound(ID("LANUrl"), errors.New("deadline")))
		out := OutcomeFromError(err)
		assert.Equal(t, StatusSkipped, out.Status)
		assert.Equal(t, KindElementNotFound, out.Kind)
		assert.Equal(t, "element not found: id=LANUrl", out.Reason)
	})

	t.Run("driver failure is fatal", func(t *testing.T) {
		out := OutcomeFromError(&OpError{Kind: KindDriver, Err: errors.New("boom")})
		assert.Equal(t, StatusFatal, out.Status)
	})

	t.Run("unclassified error is fatal", func(t *testing.T) {
		out := OutcomeFromError(errors.New("boom"))
		assert.Equal(t, StatusFatal, out.Status)
		assert.Equal(t, KindDriver, out.Kind)
	})
}

func TestWithPhase(t *testing.T) {
	err := WithPhase(NewError(KindLoginFailed, "check element absent"), "login")
	var opErr *OpError
	require.ErrorAs(t, err, &opErr)
	assert.Equal(t, "login", opErr.Phase)

	// An existing phase is kept.
	err = WithPhase(err, "reset-dns")
	require.ErrorAs(t, err, &opErr)
	assert.Equal(t, "login", opErr.Phase)

	// Plain errors become driver failures.
	err = WithPhase(errors.New("socket closed"), "dns")
	assert.Equal(t, KindDriver, KindOf(err))
	assert.Nil(t, WithPhase(nil, "dns"))
}

func TestRunSummary_Record(t *testing.T) {
	s := NewRunSummary("run-1", time.Now())
	s.Record(DeviceResult{Row: 0, Operations: []OperationResult{
		{Operation: OpResetDNS, Outcome: Succeeded()},
		{Operation: OpResetPassword, Outcome: Skipped(KindElementNotFound, "element not found: id=x")},
	}})
	s.Record(DeviceResult{Row: 1, Operations: []OperationResult{
		{Operation: OpResetDNS, Outcome: Fatal("boom")},
	}})

	require.Len(t, s.Devices, 2)
	assert.Equal(t, Counts{Succeeded: 1, Fatal: 1}, *s.Totals[OpResetDNS])
	assert.Equal(t, Counts{Skipped: 1}, *s.Totals[OpResetPassword])
	assert.Equal(t, 2, s.Totals[OpResetDNS].Total())

	out, ok := s.Devices[0].Outcome(OpResetPassword)
	require.True(t, ok)
	assert.Equal(t, "skipped(element not found: id=x)", out.String())
}

func TestParseLocatorStrategy(t *testing.T) {
	s, err := ParseLocatorStrategy("XPath")
	require.NoError(t, err)
	assert.Equal(t, ByPathExpression, s)

	s, err = ParseLocatorStrategy("id")
	require.NoError(t, err)
	assert.Equal(t, ByIdentifier, s)

	_, err = ParseLocatorStrategy("css")
	assert.Error(t, err)
}
