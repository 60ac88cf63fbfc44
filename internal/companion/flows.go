package companion

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/deskpal/deskpal/internal/ai"
	"github.com/deskpal/deskpal/internal/db"
	"github.com/deskpal/deskpal/internal/logging"
	"github.com/deskpal/deskpal/internal/schedule"
	"github.com/deskpal/deskpal/internal/store"
)

// Gate acquisition bounds per flow. Welcome waits because there is nothing
// else worth doing at startup; goodbye gets a short grace so shutdown never
// hangs.
const (
	welcomeWait = 10 * time.Second
	goodbyeWait = 5 * time.Second
)

// BusyReply is surfaced when a generation is already in flight: Chat
// returns it, and a dropped reminder message emits it as its event text.
const BusyReply = "(I'm in the middle of something, one moment...)"

// welcome greets the user at startup, mentioning how long the companion was
// away when the last exit time is known. Falls back to a canned line when
// the backend is unreachable or unconfigured.
func (s *Session) welcome(ctx context.Context) {
	if !s.gate.AcquireTimeout(welcomeWait) {
		return
	}
	defer s.gate.Release()

	now := s.now()
	snap, err := s.store.CurrentSnapshot()
	if err != nil {
		return
	}

	vars := map[string]string{"offline_text": "a while"}
	if snap.LastExitTime != "" {
		if exit, ok := store.ParseTimestamp(snap.LastExitTime); ok && now.After(exit) {
			vars["offline_text"] = humanizeDuration(now.Sub(exit))
		}
	}

	text, err := s.gen.Generate(ctx, ai.KindWelcome, vars)
	if err != nil {
		logging.Warnf("welcome generation failed: %v", err)
		text = fmt.Sprintf("%s missed you. Welcome back!", snap.Name)
	}
	s.deliver("welcome", "", text, now)
}

// goodbye records the exit time and, if the gate frees up in time, says a
// short farewell. Both steps are best effort.
func (s *Session) goodbye() {
	now := s.now()
	if err := s.store.SetLastExit(now); err != nil {
		logging.Warnf("failed to record exit time: %v", err)
	}

	if !s.gate.AcquireTimeout(goodbyeWait) {
		return
	}
	defer s.gate.Release()

	ctx, cancel := context.WithTimeout(context.Background(), goodbyeWait)
	defer cancel()
	text, err := s.gen.Generate(ctx, ai.KindGoodbye, nil)
	if err != nil {
		return
	}
	s.deliver("goodbye", "", text, now)
}

// Drink records one cup, reschedules the water reminder, and asks for an
// encouraging line. The feedback is dropped silently when the gate is busy;
// the cup always counts.
func (s *Session) Drink(ctx context.Context) (cups, target float64, err error) {
	cups, target, err = s.store.RecordDrink()
	if err != nil {
		return 0, 0, err
	}

	now := s.now()
	if snap, serr := s.store.CurrentSnapshot(); serr == nil {
		if item, ok := schedule.ItemFor(snap, "water", now); ok {
			s.table.Set(item, now)
		}
	}

	if !s.gate.TryAcquire() {
		return cups, target, nil
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer s.gate.Release()
		text, gerr := s.gen.Generate(ctx, ai.KindDrinkFeedback, nil)
		if gerr != nil {
			logging.Debugf("drink feedback generation failed: %v", gerr)
			return
		}
		s.deliver("drink", "", text, s.now())
	}()
	return cups, target, nil
}

// Chat handles one user message. A busy gate returns BusyReply immediately
// rather than queueing; the user turn is still recorded so the conversation
// history stays truthful.
func (s *Session) Chat(ctx context.Context, input string) (string, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return "", fmt.Errorf("empty message")
	}
	if err := s.store.AppendChat("user", input); err != nil {
		return "", err
	}

	if !s.gate.TryAcquire() {
		return BusyReply, nil
	}
	defer s.gate.Release()

	reply, err := s.gen.Generate(ctx, ai.KindManualChat, map[string]string{"user_input": input})
	if err != nil {
		s.record("chat", "", s.now(), db.OutcomeFailed, err.Error())
		return "(" + ai.ShortError(err) + ")", nil
	}
	if aerr := s.store.AppendChat("assistant", reply); aerr != nil {
		logging.Warnf("failed to record assistant reply: %v", aerr)
	}
	return reply, nil
}

// SwitchCharacter hands the session over: the outgoing character says
// goodbye, the store switches and reconciles, the schedule is rebuilt, and
// the incoming character introduces itself.
func (s *Session) SwitchCharacter(ctx context.Context, id string) error {
	outgoing, err := s.store.CurrentSnapshot()
	if err != nil {
		return err
	}
	if outgoing.ID == id {
		return nil
	}

	incomingName := id
	for _, info := range s.store.Characters() {
		if info.ID == id {
			incomingName = info.Name
		}
	}

	if s.gate.AcquireTimeout(goodbyeWait) {
		vars := map[string]string{"next_character_name": incomingName}
		if text, gerr := s.gen.Generate(ctx, ai.KindSwitchGoodbye, vars); gerr == nil {
			s.deliver("switch", outgoing.Name, text, s.now())
		}
		s.gate.Release()
	}

	if err := s.store.SwitchCharacter(id); err != nil {
		return err
	}
	s.RebuildSchedule()

	if s.gate.AcquireTimeout(goodbyeWait) {
		vars := map[string]string{"prev_character_name": outgoing.Name}
		if text, gerr := s.gen.Generate(ctx, ai.KindSwitchHello, vars); gerr == nil {
			s.deliver("switch", "", text, s.now())
		}
		s.gate.Release()
	}
	return nil
}

// AddCountdown creates a countdown reminder, schedules it, and has the
// character acknowledge it.
func (s *Session) AddCountdown(ctx context.Context, content string, intervalMinutes float64, count int) (*store.CountdownReminder, error) {
	r, err := s.store.AddCountdown(content, intervalMinutes, count)
	if err != nil {
		return nil, err
	}

	now := s.now()
	if snap, serr := s.store.CurrentSnapshot(); serr == nil {
		if item, ok := schedule.ItemFor(snap, "custom:"+r.ID, now); ok {
			s.table.Set(item, now)
		}
	}

	if s.gate.TryAcquire() {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			defer s.gate.Release()
			vars := map[string]string{
				"reminder_content": content,
				"interval":         fmt.Sprintf("%g", intervalMinutes),
				"count":            fmt.Sprintf("%d", count),
			}
			if text, gerr := s.gen.Generate(ctx, ai.KindReminderCreated, vars); gerr == nil {
				s.deliver("custom", content, text, s.now())
			}
		}()
	}
	return r, nil
}

// RemoveCountdown deletes a countdown reminder and its table entry.
func (s *Session) RemoveCountdown(id string) error {
	if err := s.store.RemoveCountdown(id); err != nil {
		return err
	}
	s.table.Remove("custom:" + id)
	return nil
}

func humanizeDuration(d time.Duration) string {
	switch {
	case d < time.Minute:
		return "a moment"
	case d < time.Hour:
		return fmt.Sprintf("%d minutes", int(d.Minutes()))
	case d < 48*time.Hour:
		return fmt.Sprintf("%d hours", int(d.Hours()))
	default:
		return fmt.Sprintf("%d days", int(d.Hours()/24))
	}
}
