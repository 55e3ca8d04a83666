// Sentinel - Security Observability & Threat Response for WagerDeck
// Copyright 2026 WagerDeck Engineering
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/wagerdeck/sentinel

package detection

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/goccy/go-json"
)

// ImpossibleTravelConfig configures the travel rule.
type ImpossibleTravelConfig struct {
	// MaxSpeedKmH is the physically implausible travel speed.
	MaxSpeedKmH float64 `json:"max_speed_kmh"`

	// MinDistanceKm ignores transitions between nearby locations, where
	// geolocation jitter dominates.
	MinDistanceKm float64 `json:"min_distance_km"`

	// MinTimeDelta ignores near-simultaneous events whose implied speed
	// is dominated by clock noise.
	MinTimeDelta time.Duration `json:"min_time_delta"`
}

// DefaultImpossibleTravelConfig returns sensible defaults.
func DefaultImpossibleTravelConfig() ImpossibleTravelConfig {
	return ImpossibleTravelConfig{
		MaxSpeedKmH:   1000,
		MinDistanceKm: 100,
		MinTimeDelta:  time.Minute,
	}
}

// TravelIndicators carries the evidence for a travel threat.
type TravelIndicators struct {
	FromCity      string    `json:"from_city,omitempty"`
	FromCountry   string    `json:"from_country,omitempty"`
	FromLatitude  float64   `json:"from_latitude"`
	FromLongitude float64   `json:"from_longitude"`
	FromTimestamp time.Time `json:"from_timestamp"`
	ToCity        string    `json:"to_city,omitempty"`
	ToCountry     string    `json:"to_country,omitempty"`
	ToLatitude    float64   `json:"to_latitude"`
	ToLongitude   float64   `json:"to_longitude"`
	ToTimestamp   time.Time `json:"to_timestamp"`
	DistanceKm    float64   `json:"distance_km"`
	SpeedKmH      float64   `json:"speed_kmh"`
}

// ImpossibleTravelRule flags sessions whose geographic transitions imply a
// physically implausible travel speed. Coordinates come from IP resolution,
// never from the client.
type ImpossibleTravelRule struct {
	config  ImpossibleTravelConfig
	enabled bool
	mu      sync.RWMutex
}

// NewImpossibleTravelRule creates the rule with default thresholds.
func NewImpossibleTravelRule() *ImpossibleTravelRule {
	return &ImpossibleTravelRule{
		config:  DefaultImpossibleTravelConfig(),
		enabled: true,
	}
}

// Type returns the threat type.
func (r *ImpossibleTravelRule) Type() ThreatType {
	return ThreatImpossibleTravel
}

// Fast reports that this rule needs the full path.
func (r *ImpossibleTravelRule) Fast() bool {
	return false
}

// Evaluate compares the event's location against the actor's previous
// geotagged observation within the lookback.
func (r *ImpossibleTravelRule) Evaluate(_ context.Context, event *SecurityEvent, state State) ([]*Threat, error) {
	r.mu.RLock()
	config := r.config
	enabled := r.enabled
	r.mu.RUnlock()

	if !enabled || event.ActorID == "" {
		return nil, nil
	}
	if IsUnknownLocation(event.Latitude, event.Longitude) {
		return nil, nil
	}

	prev, ok := state.LastLocation(event.ActorID)
	if !ok {
		return nil, nil
	}

	timeDelta := event.Timestamp.Sub(prev.Timestamp)
	if timeDelta < config.MinTimeDelta {
		return nil, nil
	}

	distanceKm := haversineKm(prev.Latitude, prev.Longitude, event.Latitude, event.Longitude)
	if distanceKm < config.MinDistanceKm {
		return nil, nil
	}

	speedKmH := distanceKm / timeDelta.Hours()
	if speedKmH <= config.MaxSpeedKmH {
		return nil, nil
	}

	indicators, _ := json.Marshal(TravelIndicators{
		FromCity:      prev.City,
		FromCountry:   prev.Country,
		FromLatitude:  prev.Latitude,
		FromLongitude: prev.Longitude,
		FromTimestamp: prev.Timestamp,
		ToCity:        event.City,
		ToCountry:     event.Country,
		ToLatitude:    event.Latitude,
		ToLongitude:   event.Longitude,
		ToTimestamp:   event.Timestamp,
		DistanceKm:    round2(distanceKm),
		SpeedKmH:      round2(speedKmH),
	})

	t := newThreat(event, ThreatImpossibleTravel, SeverityHigh,
		"Impossible Travel",
		fmt.Sprintf("actor %s moved %.0f km from %s to %s in %.0f minutes (%.0f km/h)",
			event.ActorID, distanceKm,
			formatLocation(prev.City, prev.Country),
			formatLocation(event.City, event.Country),
			timeDelta.Minutes(), speedKmH),
		indicators)
	return []*Threat{t}, nil
}

// Configure updates the rule thresholds.
func (r *ImpossibleTravelRule) Configure(config json.RawMessage) error {
	var newConfig ImpossibleTravelConfig
	if err := json.Unmarshal(config, &newConfig); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if newConfig.MaxSpeedKmH <= 0 {
		return fmt.Errorf("max_speed_kmh must be positive")
	}
	if newConfig.MinDistanceKm < 0 {
		return fmt.Errorf("min_distance_km cannot be negative")
	}
	if newConfig.MinTimeDelta < 0 {
		return fmt.Errorf("min_time_delta cannot be negative")
	}

	r.mu.Lock()
	r.config = newConfig
	r.mu.Unlock()
	return nil
}

// Enabled returns whether this rule is enabled.
func (r *ImpossibleTravelRule) Enabled() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.enabled
}

// SetEnabled enables or disables the rule.
func (r *ImpossibleTravelRule) SetEnabled(enabled bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.enabled = enabled
}

// haversineKm returns the great-circle distance between two points in
// kilometers.
func haversineKm(lat1, lon1, lat2, lon2 float64) float64 {
	const earthRadiusKm = 6371.0

	lat1Rad := lat1 * math.Pi / 180.0
	lon1Rad := lon1 * math.Pi / 180.0
	lat2Rad := lat2 * math.Pi / 180.0
	lon2Rad := lon2 * math.Pi / 180.0

	dLat := lat2Rad - lat1Rad
	dLon := lon2Rad - lon1Rad

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1Rad)*math.Cos(lat2Rad)*
			math.Sin(dLon/2)*math.Sin(dLon/2)

	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))

	return earthRadiusKm * c
}

func formatLocation(city, country string) string {
	switch {
	case city != "" && country != "":
		return city + ", " + country
	case country != "":
		return country
	case city != "":
		return city
	}
	return "unknown"
}

func round2(f float64) float64 {
	return math.Round(f*100) / 100
}
