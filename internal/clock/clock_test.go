package clock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var clockStart = time.Date(2026, 3, 10, 21, 30, 0, 0, time.UTC)

func TestParseTimeOfDay(t *testing.T) {
	tod, err := ParseTimeOfDay("22:00")
	require.NoError(t, err)
	assert.Equal(t, TimeOfDay{Hour: 22}, tod)
	assert.Equal(t, "22:00", tod.String())
}

func TestParseTimeOfDayRejectsGarbage(t *testing.T) {
	for _, input := range []string{"", "22", "24:00", "12:60", "ab:cd", "12:3:4"} {
		_, err := ParseTimeOfDay(input)
		require.ErrorIs(t, err, ErrInvalidTimeOfDay, "input %q", input)
	}
}

func TestTimeOfDayNext(t *testing.T) {
	trigger := TimeOfDay{Hour: 22}

	// Later today.
	next := trigger.Next(clockStart)
	assert.Equal(t, time.Date(2026, 3, 10, 22, 0, 0, 0, time.UTC), next)

	// Already past; rolls to tomorrow.
	next = trigger.Next(clockStart.Add(time.Hour))
	assert.Equal(t, time.Date(2026, 3, 11, 22, 0, 0, 0, time.UTC), next)
}

func TestTimeOfDayMatches(t *testing.T) {
	trigger := TimeOfDay{Hour: 5, Minute: 30}

	assert.True(t, trigger.Matches(time.Date(2026, 3, 10, 5, 30, 59, 0, time.UTC)))
	assert.False(t, trigger.Matches(time.Date(2026, 3, 10, 5, 31, 0, 0, time.UTC)))
}

func TestFakeAdvanceFiresTimer(t *testing.T) {
	fake := NewFake(clockStart)
	timer := fake.NewTimer(10 * time.Minute)

	fake.Advance(5 * time.Minute)

	select {
	case <-timer.C():
		t.Fatal("timer fired early")
	default:
	}

	fake.Advance(5 * time.Minute)

	select {
	case at := <-timer.C():
		assert.Equal(t, clockStart.Add(10*time.Minute), at)
	default:
		t.Fatal("timer did not fire")
	}
}

func TestFakeTickerFiresRepeatedly(t *testing.T) {
	fake := NewFake(clockStart)
	ticker := fake.NewTicker(time.Minute)

	defer ticker.Stop()

	fake.Advance(time.Minute)

	select {
	case <-ticker.C():
	default:
		t.Fatal("first tick missing")
	}

	fake.Advance(time.Minute)

	select {
	case <-ticker.C():
	default:
		t.Fatal("second tick missing")
	}
}

func TestFakeTimerResetRearms(t *testing.T) {
	fake := NewFake(clockStart)
	timer := fake.NewTimer(time.Minute)

	fake.Advance(time.Minute)
	<-timer.C()

	timer.Reset(time.Minute)
	fake.Advance(time.Minute)

	select {
	case <-timer.C():
	default:
		t.Fatal("reset timer did not fire")
	}
}

func TestFakeStoppedTickerStaysQuiet(t *testing.T) {
	fake := NewFake(clockStart)
	ticker := fake.NewTicker(time.Minute)

	ticker.Stop()
	fake.Advance(5 * time.Minute)

	select {
	case <-ticker.C():
		t.Fatal("stopped ticker fired")
	default:
	}
}

func TestSystemClockNow(t *testing.T) {
	before := time.Now()
	now := System().Now()
	after := time.Now()

	assert.False(t, now.Before(before))
	assert.False(t, now.After(after))
}
