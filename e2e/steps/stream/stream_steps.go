package stream

import (
	"context"
	"fmt"
	"time"

	"github.com/cucumber/godog"

	"eudi-storefront/internal/verification/events"
)

// TestContext interface defines the methods needed from the main test context
type TestContext interface {
	Follow(subject string)
	Streamed() []events.Message
}

// RegisterSteps registers event stream step definitions
func RegisterSteps(ctx *godog.ScenarioContext, tc TestContext) {
	steps := &streamSteps{tc: tc}

	ctx.Step(`^I follow the event stream of "([^"]*)"$`, steps.follow)
	ctx.Step(`^the event stream should deliver "([^"]*)" within (\d+) seconds$`, steps.shouldDeliverWithin)
	ctx.Step(`^the event stream should not report parse errors$`, steps.noParseErrors)
}

type streamSteps struct {
	tc TestContext
}

func (s *streamSteps) follow(ctx context.Context, subject string) error {
	s.tc.Follow(subject)
	return s.shouldDeliverWithin(ctx, string(events.TypeConnected), 5)
}

func (s *streamSteps) shouldDeliverWithin(ctx context.Context, eventType string, seconds int) error {
	deadline := time.Now().Add(time.Duration(seconds) * time.Second)
	for {
		for _, m := range s.tc.Streamed() {
			if m.Event != nil && string(m.Event.Type) == eventType {
				return nil
			}
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("no %s event within %ds (%d messages seen)", eventType, seconds, len(s.tc.Streamed()))
		}
		time.Sleep(100 * time.Millisecond)
	}
}

func (s *streamSteps) noParseErrors(ctx context.Context) error {
	for _, m := range s.tc.Streamed() {
		if m.IsParseError() {
			return fmt.Errorf("stream delivered a malformed frame: %v", m.Err)
		}
	}
	return nil
}
