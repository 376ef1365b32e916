// Package mock simulates a switch event feed for development, driving
// the relay with scripted call scenarios.
package mock

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"time"

	"github.com/call-deck/backend/internal/relay"
	"github.com/call-deck/backend/internal/session"
	"github.com/google/uuid"
)

type step struct {
	afterTicks int // ticks since the previous step
	event      func(id string, now time.Time) session.Event
}

type scenario struct {
	name  string
	steps []step
}

// mockCall is one in-flight scripted call.
type mockCall struct {
	id       string
	scenario scenario
	stepIdx  int
	wait     int
}

type Generator struct {
	relay     *relay.Relay
	scenarios []scenario
	calls     []*mockCall
	nextScen  int
}

func NewGenerator(r *relay.Relay) *Generator {
	return &Generator{
		relay:     r,
		scenarios: buildScenarios(),
	}
}

func (g *Generator) Start(ctx context.Context) {
	go g.run(ctx)
}

func (g *Generator) run(ctx context.Context) {
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	tick := 0
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			tick++
			// A fresh call every ~6 seconds, cycling through scenarios.
			if tick%12 == 1 {
				g.spawn()
			}
			g.advance()
		}
	}
}

func (g *Generator) spawn() {
	sc := g.scenarios[g.nextScen%len(g.scenarios)]
	g.nextScen++
	c := &mockCall{
		id:       "mock-" + uuid.NewString()[:8],
		scenario: sc,
		wait:     sc.steps[0].afterTicks,
	}
	g.calls = append(g.calls, c)
}

func (g *Generator) advance() {
	now := time.Now()
	remaining := g.calls[:0]
	for _, c := range g.calls {
		if c.wait > 0 {
			c.wait--
			remaining = append(remaining, c)
			continue
		}
		st := c.scenario.steps[c.stepIdx]
		g.relay.HandleEvent(st.event(c.id, now))
		c.stepIdx++
		if c.stepIdx < len(c.scenario.steps) {
			c.wait = c.scenario.steps[c.stepIdx].afterTicks
			remaining = append(remaining, c)
		}
	}
	g.calls = remaining
}

func randomANI() string {
	return fmt.Sprintf("+1555%07d", rand.Intn(10000000))
}

func callStarted(id string, now time.Time) session.Event {
	return session.Event{
		Type:       session.EventCallStarted,
		SessionID:  id,
		ReceivedAt: now,
		ANI:        randomANI(),
		DNIS:       "+18005550100",
	}
}

func identityResolved(id string, now time.Time) session.Event {
	ref := fmt.Sprintf("MBR-%06d", rand.Intn(1000000))
	pop, _ := json.Marshal(map[string]string{
		"memberName": "Mock Caller",
		"tier":       "standard",
	})
	return session.Event{
		Type:       session.EventIdentityResolved,
		SessionID:  id,
		ReceivedAt: now,
		CallerRef:  ref,
		ScreenPop:  pop,
	}
}

func verificationRequested(id string, now time.Time) session.Event {
	return session.Event{
		Type:       session.EventVerificationRequested,
		SessionID:  id,
		ReceivedAt: now,
	}
}

func verifySubmit(accepted bool, reason string) func(string, time.Time) session.Event {
	return func(id string, now time.Time) session.Event {
		return session.Event{
			Type:       session.EventVerifySubmit,
			SessionID:  id,
			ReceivedAt: now,
			Method:     "last_four_ssn",
			Accepted:   accepted,
			Reason:     reason,
		}
	}
}

func callAnswered(id string, now time.Time) session.Event {
	return session.Event{
		Type:       session.EventCallAnswered,
		SessionID:  id,
		ReceivedAt: now,
	}
}

func callEnded(disposition string, duration int) func(string, time.Time) session.Event {
	return func(id string, now time.Time) session.Event {
		return session.Event{
			Type:            session.EventCallEnded,
			SessionID:       id,
			ReceivedAt:      now,
			DurationSeconds: duration,
			Disposition:     disposition,
		}
	}
}

func buildScenarios() []scenario {
	return []scenario{
		{
			name: "clean",
			steps: []step{
				{0, callStarted},
				{2, identityResolved},
				{2, verificationRequested},
				{3, verifySubmit(true, "")},
				{2, callAnswered},
				{20, callEnded("resolved", 180)},
			},
		},
		{
			name: "retry",
			steps: []step{
				{0, callStarted},
				{2, identityResolved},
				{2, verificationRequested},
				{3, verifySubmit(false, "mismatch")},
				{4, verifySubmit(true, "")},
				{2, callAnswered},
				{16, callEnded("resolved", 210)},
			},
		},
		{
			name: "abandoned",
			steps: []step{
				{0, callStarted},
				{2, identityResolved},
				{4, callEnded("abandoned", 12)},
			},
		},
		{
			name: "failed_verification",
			steps: []step{
				{0, callStarted},
				{2, identityResolved},
				{2, verificationRequested},
				{3, verifySubmit(false, "mismatch")},
				{3, verifySubmit(false, "timeout")},
				{3, callEnded("verification_failed", 95)},
			},
		},
	}
}
