package hnap

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildEnvelope(t *testing.T) {
	body := buildEnvelope("GetSocketSettings", param{"ModuleID", "1"})

	assert.Contains(t, string(body), `<GetSocketSettings xmlns="http://purenetworks.com/HNAP1/">`)
	assert.Contains(t, string(body), `<ModuleID>1</ModuleID>`)

	v, ok := readValue(body, "ModuleID")
	require.True(t, ok)
	assert.Equal(t, "1", v)
}

func TestBuildEnvelope_EscapesValues(t *testing.T) {
	body := buildEnvelope("Login", param{"Username", "a<b&c"})

	v, ok := readValue(body, "Username")
	require.True(t, ok)
	assert.Equal(t, "a<b&c", v)
}

func TestReadValue(t *testing.T) {
	body := []byte(`<?xml version="1.0"?>
<soap:Envelope xmlns:soap="http://schemas.xmlsoap.org/soap/envelope/"><soap:Body>
<GetCurrentPowerConsumptionResponse xmlns="http://purenetworks.com/HNAP1/">
<GetCurrentPowerConsumptionResult>OK</GetCurrentPowerConsumptionResult>
<CurrentConsumption> 42.6 </CurrentConsumption>
<Empty></Empty>
</GetCurrentPowerConsumptionResponse></soap:Body></soap:Envelope>`)

	tests := []struct {
		name   string
		field  string
		want   string
		wantOK bool
	}{
		{"present", "CurrentConsumption", "42.6", true},
		{"empty element", "Empty", "", true},
		{"missing", "TotalConsumption", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := readValue(body, tt.field)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestReadValue_Malformed(t *testing.T) {
	_, ok := readValue([]byte("<html><body>not soap"), "OPStatus")
	assert.False(t, ok)
}
