package hnap

import (
	"context"
	"sync/atomic"
)

// Undefined is the raw value returned when a reply lacks the requested element.
const Undefined = "undefined"

// Module reads: method, module ID and reply element.
const (
	methodSocketSettings   = "GetSocketSettings"
	methodPowerConsumption = "GetCurrentPowerConsumption"
	methodPMThreshold      = "GetPMWarningThreshold"
	methodTemperature      = "GetCurrentTemperature"

	moduleSocket      = "1"
	moduleMeter       = "2"
	moduleTemperature = "3"
)

// Session is an authenticated HNAP session with one plug. It is safe for
// concurrent use; the four reads may run in parallel.
type Session struct {
	client     *Client
	endpoint   string
	cookie     string
	privateKey string
	closed     atomic.Bool
}

// State returns the relay state (OPStatus), "true" when on.
func (s *Session) State(ctx context.Context) (string, error) {
	return s.read(ctx, methodSocketSettings, moduleSocket, "OPStatus")
}

// Consumption returns the instantaneous power draw in watts.
func (s *Session) Consumption(ctx context.Context) (string, error) {
	return s.read(ctx, methodPowerConsumption, moduleMeter, "CurrentConsumption")
}

// TotalConsumption returns the cumulative energy in kWh.
func (s *Session) TotalConsumption(ctx context.Context) (string, error) {
	return s.read(ctx, methodPMThreshold, moduleMeter, "TotalConsumption")
}

// Temperature returns the internal temperature in °C.
func (s *Session) Temperature(ctx context.Context) (string, error) {
	return s.read(ctx, methodTemperature, moduleTemperature, "CurrentTemperature")
}

// Close ends the session. The plug keeps no server-side state to release,
// so this only forbids further use.
func (s *Session) Close() error {
	s.closed.Store(true)
	return nil
}

func (s *Session) read(ctx context.Context, method, moduleID, field string) (string, error) {
	if s.closed.Load() {
		return "", ErrSessionClosed
	}
	if s.privateKey == "" {
		return "", ErrNotLoggedIn
	}

	body, err := s.client.call(ctx, s.endpoint, method, s.headers(method),
		buildEnvelope(method, param{"ModuleID", moduleID}))
	if err != nil {
		return "", err
	}

	value, ok := readValue(body, field)
	if !ok {
		s.client.logger.Debug("hnap reply lacks element", "method", method, "element", field)
		return Undefined, nil
	}
	return value, nil
}

// headers returns the authentication headers for method.
func (s *Session) headers(method string) map[string]string {
	return map[string]string{
		"HNAP_AUTH": authHeader(s.privateKey, method, s.client.now()),
		"Cookie":    "uid=" + s.cookie,
	}
}
