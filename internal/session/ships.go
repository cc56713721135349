package session

import (
	"context"
	"fmt"

	"github.com/colthorp/spacetraders-cache-go/internal/cache"
	"github.com/colthorp/spacetraders-cache-go/internal/core"
	"github.com/colthorp/spacetraders-cache-go/internal/ship"
)

// GuardedAction runs action for shipSymbol through the cooldown gate.
func (s *Session) GuardedAction(ctx context.Context, shipSymbol string, action ship.Action) (ship.Outcome, error) {
	return s.gate.Guard(ctx, shipSymbol, action, s.readCooldown)
}

// Cooldown reads the ship's cooldown from the API and remembers it.
func (s *Session) Cooldown(ctx context.Context, shipSymbol string) (ship.Cooldown, error) {
	cd, err := s.readCooldown(ctx, shipSymbol)
	if err != nil {
		return ship.Cooldown{}, err
	}
	s.gate.Set(cd)
	return cd, nil
}

// RemainingCooldown returns the locally known cooldown seconds for a ship.
func (s *Session) RemainingCooldown(shipSymbol string) (int, bool) {
	return s.gate.Remaining(shipSymbol)
}

func (s *Session) readCooldown(ctx context.Context, shipSymbol string) (ship.Cooldown, error) {
	data, err := s.api.GetCooldown(ctx, shipSymbol)
	if err != nil {
		return ship.Cooldown{}, err
	}
	return cooldownFromRecord(shipSymbol, data)
}

// cooldownFromRecord parses a cooldown payload. A missing payload or one
// without remaining seconds is no cooldown.
func cooldownFromRecord(shipSymbol string, data cache.Record) (ship.Cooldown, error) {
	cd := ship.Cooldown{Actor: shipSymbol}
	if data == nil {
		return cd, nil
	}
	cd.TotalSeconds, _ = core.IntField(data, "totalSeconds")
	if remaining, ok := core.IntField(data, "remainingSeconds"); ok && remaining == 0 {
		return cd, nil
	}
	exp := core.StringField(data, "expiration")
	if exp == "" {
		return cd, nil
	}
	t, err := core.ParseTimestamp(exp)
	if err != nil {
		return ship.Cooldown{}, fmt.Errorf("cooldown for %s: %w", shipSymbol, err)
	}
	cd.ExpiresAt = t
	return cd, nil
}

// SurveyAction surveys the ship's waypoint through the cooldown gate and
// stores the resulting surveys.
func (s *Session) SurveyAction(ctx context.Context, shipSymbol string) (ship.Outcome, error) {
	return s.GuardedAction(ctx, shipSymbol, func(ctx context.Context) (cache.Record, error) {
		result, err := s.api.Survey(ctx, shipSymbol)
		if err != nil {
			return nil, err
		}
		if err := s.surveys.Add(shipSymbol, surveyRecords(result)); err != nil {
			s.log.Warn().Err(err).Str("ship", shipSymbol).Msg("storing surveys failed")
		}
		return result, nil
	})
}

func surveyRecords(result cache.Record) []cache.Record {
	list, _ := result["surveys"].([]interface{})
	out := make([]cache.Record, 0, len(list))
	for _, item := range list {
		if rec, ok := item.(map[string]interface{}); ok {
			out = append(out, rec)
		}
	}
	return out
}

// Surveys returns the unexpired surveys stored for a ship.
func (s *Session) Surveys(shipSymbol string) ([]ship.Survey, error) {
	return s.surveys.Surveys(shipSymbol)
}

// SelectSurvey picks the best stored survey for the ship's current waypoint.
// The ship is refreshed first so its location is current.
func (s *Session) SelectSurvey(ctx context.Context, shipSymbol, target string) (ship.Survey, bool, error) {
	rec, err := s.Refresh(ctx, cache.Ships, shipSymbol)
	if err != nil {
		return ship.Survey{}, false, err
	}
	waypoint := currentWaypoint(rec)
	if waypoint == "" {
		return ship.Survey{}, false, fmt.Errorf("ship %s has no current waypoint", shipSymbol)
	}

	surveys, err := s.surveys.Surveys(shipSymbol)
	if err != nil {
		return ship.Survey{}, false, err
	}
	chosen, ok := ship.Select(surveys, waypoint, target, s.now())
	return chosen, ok, nil
}

func currentWaypoint(shipRec cache.Record) string {
	nav, _ := shipRec["nav"].(map[string]interface{})
	return core.StringField(nav, "waypointSymbol")
}

// Extract extracts at the ship's waypoint with the best stored survey for
// target, or without a survey when none qualifies. It makes exactly one
// extract request.
func (s *Session) Extract(ctx context.Context, shipSymbol, target string) (ship.Outcome, error) {
	if remaining, ok := s.gate.Check(ctx, shipSymbol, s.readCooldown); ok {
		return ship.Outcome{Rejected: true, Remaining: remaining}, nil
	}

	chosen, ok, err := s.SelectSurvey(ctx, shipSymbol, target)
	if err != nil {
		return ship.Outcome{}, err
	}

	var survey cache.Record
	if ok {
		survey = chosen.Raw
		s.log.Debug().Str("ship", shipSymbol).Str("survey", chosen.Signature).Msg("extracting with survey")
	}

	return s.GuardedAction(ctx, shipSymbol, func(ctx context.Context) (cache.Record, error) {
		return s.api.Extract(ctx, shipSymbol, survey)
	})
}
