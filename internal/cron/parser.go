package cron

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// Schedule yields the next firing time after a given instant.
type Schedule interface {
	Next(after time.Time) time.Time
}

type Parser struct {
	parser cron.Parser
}

// NewParser accepts five-field expressions, an optional leading seconds
// field, and descriptors such as @hourly or @every 45s.
func NewParser() *Parser {
	return &Parser{
		parser: cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor),
	}
}

// Parse turns a cycle schedule into a Schedule. A plain Go duration such as
// "30s" fires at that fixed period; anything else is a cron expression
// evaluated in timezone.
func (p *Parser) Parse(expression string, timezone string) (Schedule, error) {
	expression = strings.TrimSpace(expression)
	if expression == "" {
		return nil, errors.New("parse schedule: empty expression")
	}

	if d, err := time.ParseDuration(expression); err == nil {
		if d <= 0 {
			return nil, fmt.Errorf("parse schedule: period must be positive, got %s", d)
		}
		return Every(d), nil
	}

	sched, err := p.parser.Parse(expression)
	if err != nil {
		return nil, fmt.Errorf("parse cron: %w", err)
	}

	if timezone == "" {
		timezone = "UTC"
	}
	loc, err := time.LoadLocation(timezone)
	if err != nil {
		return nil, fmt.Errorf("load timezone: %w", err)
	}

	return &schedule{sched: sched, loc: loc}, nil
}

type schedule struct {
	sched cron.Schedule
	loc   *time.Location
}

func (s *schedule) Next(after time.Time) time.Time {
	return s.sched.Next(after.In(s.loc))
}

// Every returns a fixed-period schedule. Unlike cron's @every it keeps
// sub-second periods.
func Every(d time.Duration) Schedule {
	return interval(d)
}

type interval time.Duration

func (i interval) Next(after time.Time) time.Time {
	return after.Add(time.Duration(i))
}
