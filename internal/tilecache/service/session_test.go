package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"tilecache/internal/tilecache/models"
	"tilecache/internal/tilecache/service/mocks"
	"tilecache/internal/tilecache/store/memory"
	"tilecache/internal/tilecache/tier"
	"tilecache/pkg/domain"
	dErrors "tilecache/pkg/domain-errors"
)

const (
	testCourse = domain.CourseID(2)
	testUser   = domain.UserID(5)
	baseUnix   = int64(1_700_000_000)
)

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

type SessionSuite struct {
	suite.Suite
	ctx       context.Context
	durable   *memory.InMemoryTier
	ephemeral *memory.InMemoryTier
	sched     *ManualScheduler
	clock     *fakeClock
}

func TestSessionSuite(t *testing.T) {
	suite.Run(t, new(SessionSuite))
}

func (s *SessionSuite) SetupTest() {
	s.ctx = context.Background()
	s.durable = memory.NewInMemoryTier()
	s.ephemeral = memory.NewInMemoryTier()
	s.sched = NewManualScheduler()
	s.clock = &fakeClock{now: time.Unix(baseUnix, 0)}
}

func (s *SessionSuite) params() models.Params {
	return models.Params{
		CourseID:           testCourse,
		UserID:             testUser,
		MaxSectionsToStore: 10,
		CurrentSection:     1,
		StaleMinutes:       30,
	}
}

func (s *SessionSuite) tiers() tier.Pair {
	return tier.Pair{Durable: s.durable, Ephemeral: s.ephemeral}
}

func (s *SessionSuite) newSession(p models.Params, opts ...Option) *Session {
	base := []Option{
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		WithScheduler(s.sched),
		WithClock(s.clock.Now),
	}
	sess, err := Init(s.ctx, p, s.tiers(), append(base, opts...)...)
	s.Require().NoError(err)
	return sess
}

// consenting stores a prior "yes" so the session starts with consent given.
func (s *SessionSuite) consenting(opts ...Option) *Session {
	s.Require().NoError(s.durable.Set(s.ctx, models.ConsentKey(testUser), "yes"))
	sess := s.newSession(s.params(), opts...)
	s.Require().Equal(models.ConsentGiven, sess.Consent())
	return sess
}

func (s *SessionSuite) seedEntry(section domain.SectionNum, stamp string) {
	k := models.EntryKey{CourseID: testCourse, Section: section, UserID: testUser}
	s.Require().NoError(s.ephemeral.Set(s.ctx, models.ContentKey(k), "<p>section "+section.String()+"</p>"))
	s.Require().NoError(s.ephemeral.Set(s.ctx, models.TimestampKey(k), stamp))
}

func (s *SessionSuite) hasKey(t tier.Tier, key string) bool {
	_, ok, err := t.Get(s.ctx, key)
	s.Require().NoError(err)
	return ok
}

func (s *SessionSuite) TestInit() {
	s.Run("unset consent probes both tiers", func() {
		s.SetupTest()
		sess := s.newSession(s.params())
		snap := sess.Snapshot()
		s.True(snap.DurableEnabled)
		s.True(snap.EphemeralEnabled)
		s.Equal(models.ConsentUnset, snap.Consent)
		s.True(sess.NeedsConsentPrompt())
	})

	s.Run("assume consent forces given without persisting", func() {
		s.SetupTest()
		p := s.params()
		p.AssumeConsent = true
		sess := s.newSession(p)
		s.True(sess.ConsentGiven())
		s.False(sess.NeedsConsentPrompt())
		s.False(s.hasKey(s.durable, models.ConsentKey(testUser)))
	})

	s.Run("stored consent is recalled", func() {
		s.SetupTest()
		s.consenting()
	})

	s.Run("stored denial disables tiers and purges", func() {
		s.SetupTest()
		s.Require().NoError(s.durable.Set(s.ctx, models.ConsentKey(testUser), "no"))
		s.Require().NoError(s.durable.Set(s.ctx, models.LastSectionKey(testCourse, testUser), "3"))
		s.seedEntry(3, "1700000000")

		sess := s.newSession(s.params())
		snap := sess.Snapshot()
		s.Equal(models.ConsentDenied, snap.Consent)
		s.False(snap.DurableEnabled)
		s.False(snap.EphemeralEnabled)
		s.True(s.hasKey(s.durable, models.ConsentKey(testUser)))
		s.False(s.hasKey(s.durable, models.LastSectionKey(testCourse, testUser)))
		s.Equal(0, s.ephemeral.Len())
	})

	s.Run("zero max sections disables storage", func() {
		s.SetupTest()
		p := s.params()
		p.MaxSectionsToStore = 0
		sess := s.newSession(p)
		s.False(sess.DurableEnabled())
		s.False(sess.EphemeralEnabled())
		s.False(sess.NeedsConsentPrompt())
	})

	s.Run("failing tier is disabled without error", func() {
		s.SetupTest()
		s.ephemeral = memory.NewInMemoryTier(memory.WithFailingWrites())
		sess := s.newSession(s.params())
		s.True(sess.DurableEnabled())
		s.False(sess.EphemeralEnabled())
	})

	s.Run("invalid params rejected", func() {
		s.SetupTest()
		p := s.params()
		p.MaxSectionsToStore = -1
		_, err := Init(s.ctx, p, s.tiers())
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})

	s.Run("editing mode purges then records the current section", func() {
		s.SetupTest()
		s.Require().NoError(s.durable.Set(s.ctx, models.ConsentKey(testUser), "yes"))
		s.seedEntry(0, "1700000000")
		s.seedEntry(4, "1700000000")
		p := s.params()
		p.IsEditing = true
		p.CurrentSection = 4

		sess := s.newSession(p)
		s.Equal(0, sess.ContentCount(s.ctx))
		got, ok := sess.LastVisitedSection(s.ctx)
		s.True(ok)
		s.Equal(domain.SectionNum(4), got)
	})
}

func (s *SessionSuite) TestContent() {
	s.Run("put then get", func() {
		s.SetupTest()
		sess := s.consenting()
		sess.PutContent(s.ctx, 3, "<div>three</div>")

		html, ok := sess.Content(s.ctx, 3)
		s.True(ok)
		s.Equal("<div>three</div>", html)

		age, ok := sess.ContentAge(s.ctx, 3)
		s.True(ok)
		s.GreaterOrEqual(age, int64(0))

		s.clock.Advance(90 * time.Second)
		age, ok = sess.ContentAge(s.ctx, 3)
		s.True(ok)
		s.Equal(int64(90), age)
		s.Equal(1, sess.ContentCount(s.ctx))
	})

	s.Run("empty html deletes", func() {
		s.SetupTest()
		sess := s.consenting()
		sess.PutContent(s.ctx, 3, "<div>three</div>")
		sess.PutContent(s.ctx, 3, "")

		_, ok := sess.Content(s.ctx, 3)
		s.False(ok)
		_, ok = sess.ContentAge(s.ctx, 3)
		s.False(ok)
		s.Equal(0, s.ephemeral.Len())
	})

	s.Run("no writes without consent", func() {
		s.SetupTest()
		sess := s.newSession(s.params())
		sess.PutContent(s.ctx, 3, "<div>three</div>")
		s.Equal(0, s.ephemeral.Len())
	})

	s.Run("reads are absent without consent", func() {
		s.SetupTest()
		s.seedEntry(3, "1700000000")
		sess := s.newSession(s.params())
		_, ok := sess.Content(s.ctx, 3)
		s.False(ok)
		_, ok = sess.ContentAge(s.ctx, 3)
		s.False(ok)
	})

	s.Run("denied then put stays absent and purge keeps consent", func() {
		s.SetupTest()
		sess := s.consenting()
		sess.SetLastVisitedSection(s.ctx, 2)
		sess.SetSectionZeroCollapsed(s.ctx, false)
		s.Require().NoError(s.durable.Set(s.ctx, "foreign-key", "kept"))

		sess.SetConsent(s.ctx, false)
		sess.PutContent(s.ctx, 3, "<div>three</div>")
		_, ok := sess.Content(s.ctx, 3)
		s.False(ok)

		_, err := sess.Cleanup(s.ctx, models.CleanupOptions{ClearAll: true})
		s.Require().NoError(err)
		keys, err := s.durable.Keys(s.ctx)
		s.Require().NoError(err)
		s.ElementsMatch([]string{models.ConsentKey(testUser), "foreign-key"}, keys)
	})

	s.Run("purge leaves other users' records alone", func() {
		s.SetupTest()
		const otherUser = domain.UserID(6)
		s.Require().NoError(s.durable.Set(s.ctx, models.ConsentKey(otherUser), "yes"))
		s.Require().NoError(s.durable.Set(s.ctx, models.LastSectionKey(testCourse, otherUser), "4"))
		s.Require().NoError(s.durable.Set(s.ctx, models.CollapseKey(testCourse, otherUser), "1"))
		other := models.EntryKey{CourseID: testCourse, Section: 2, UserID: otherUser}
		s.Require().NoError(s.ephemeral.Set(s.ctx, models.ContentKey(other), "<p>theirs</p>"))
		s.Require().NoError(s.ephemeral.Set(s.ctx, models.TimestampKey(other), "1700000000"))
		sess := s.consenting()
		sess.SetLastVisitedSection(s.ctx, 2)

		sess.SetConsent(s.ctx, false)

		s.False(s.hasKey(s.durable, models.LastSectionKey(testCourse, testUser)))
		for _, key := range []string{
			models.ConsentKey(otherUser),
			models.LastSectionKey(testCourse, otherUser),
			models.CollapseKey(testCourse, otherUser),
		} {
			s.True(s.hasKey(s.durable, key), key)
		}
		s.True(s.hasKey(s.ephemeral, models.ContentKey(other)))
		s.True(s.hasKey(s.ephemeral, models.TimestampKey(other)))
	})

	s.Run("unusable ephemeral tier turns put into delete", func() {
		s.SetupTest()
		s.Require().NoError(s.durable.Set(s.ctx, models.ConsentKey(testUser), "yes"))
		s.ephemeral = memory.NewInMemoryTier(memory.WithMaxKeys(2))
		s.seedEntry(3, "1700000000")

		sess := s.newSession(s.params())
		s.False(sess.EphemeralEnabled(), "full quota fails the probe")
		sess.PutContent(s.ctx, 3, "<div>three</div>")
		s.Equal(0, s.ephemeral.Len())
	})

	s.Run("zero or garbage timestamp has no age", func() {
		s.SetupTest()
		sess := s.consenting()
		s.seedEntry(3, "0")
		s.seedEntry(4, "yesterday")
		_, ok := sess.ContentAge(s.ctx, 3)
		s.False(ok)
		_, ok = sess.ContentAge(s.ctx, 4)
		s.False(ok)
	})

	s.Run("count tracks timestamp keys across courses", func() {
		s.SetupTest()
		sess := s.consenting()
		sess.PutContent(s.ctx, 1, "a")
		sess.PutContent(s.ctx, 2, "b")
		other := models.EntryKey{CourseID: 99, Section: 1, UserID: testUser}
		s.Require().NoError(s.ephemeral.Set(s.ctx, models.TimestampKey(other), "1700000000"))
		s.Require().NoError(s.ephemeral.Set(s.ctx, "mdl-course-2-sec-7-user-5-content", "orphan"))
		s.Equal(3, sess.ContentCount(s.ctx))
	})

	s.Run("invalidate removes both keys", func() {
		s.SetupTest()
		sess := s.consenting()
		sess.PutContent(s.ctx, 6, "six")
		sess.InvalidateContent(s.ctx, 6)
		s.Equal(0, s.ephemeral.Len())
	})
}

func (s *SessionSuite) TestCleanup() {
	seedTwelve := func() {
		for i := 0; i < 12; i++ {
			s.seedEntry(domain.SectionNum(i), models.FormatTimestamp(baseUnix-12+int64(i)))
		}
	}

	s.Run("capacity pass keeps the most recent", func() {
		s.SetupTest()
		sess := s.consenting()
		seedTwelve()

		res, err := sess.Cleanup(s.ctx, models.CleanupOptions{MaxAgeMinutes: 60, MaxItemsToKeep: 10})
		s.Require().NoError(err)
		s.Equal(2, res.Removed)
		s.Equal(10, res.Remaining)
		for i := 0; i < 12; i++ {
			_, ok := sess.Content(s.ctx, domain.SectionNum(i))
			s.Equal(i >= 2, ok, "section %d", i)
		}
	})

	s.Run("zero max age removes everything", func() {
		s.SetupTest()
		sess := s.consenting()
		seedTwelve()

		res, err := sess.Cleanup(s.ctx, models.CleanupOptions{MaxAgeMinutes: 0, MaxItemsToKeep: 10})
		s.Require().NoError(err)
		s.Equal(12, res.Removed)
		s.Equal(0, res.Remaining)
		s.Equal(0, s.ephemeral.Len())
	})

	s.Run("stale pass removes entries older than the limit", func() {
		s.SetupTest()
		sess := s.consenting()
		s.seedEntry(1, models.FormatTimestamp(baseUnix-61*60))
		s.seedEntry(2, models.FormatTimestamp(baseUnix-60*60))
		s.seedEntry(3, models.FormatTimestamp(baseUnix-5))
		s.seedEntry(4, "corrupt")

		res, err := sess.Cleanup(s.ctx, models.CleanupOptions{MaxAgeMinutes: 60, MaxItemsToKeep: 10})
		s.Require().NoError(err)
		s.Equal(2, res.Removed)
		s.Equal(2, res.Remaining)
		_, ok := sess.Content(s.ctx, 1)
		s.False(ok)
		_, ok = sess.Content(s.ctx, 2)
		s.True(ok, "exactly at the limit is not stale")
	})

	s.Run("ties at the cutoff survive", func() {
		s.SetupTest()
		sess := s.consenting()
		s.seedEntry(0, models.FormatTimestamp(baseUnix-20))
		s.seedEntry(1, models.FormatTimestamp(baseUnix-19))
		s.seedEntry(2, models.FormatTimestamp(baseUnix-19))
		for i := 3; i < 12; i++ {
			s.seedEntry(domain.SectionNum(i), models.FormatTimestamp(baseUnix-18+int64(i)))
		}

		res, err := sess.Cleanup(s.ctx, models.CleanupOptions{MaxAgeMinutes: 60, MaxItemsToKeep: 10})
		s.Require().NoError(err)
		s.Equal(1, res.Removed)
		s.Equal(11, res.Remaining)
	})

	s.Run("keep zero empties the tier", func() {
		s.SetupTest()
		sess := s.consenting()
		seedTwelve()
		res, err := sess.Cleanup(s.ctx, models.CleanupOptions{MaxAgeMinutes: 60, MaxItemsToKeep: 0})
		s.Require().NoError(err)
		s.Equal(0, res.Remaining)
	})

	s.Run("purge skips malformed and foreign keys and sweeps orphans", func() {
		s.SetupTest()
		sess := s.consenting()
		seedTwelve()
		malformed := "mdl-course-x-sec-1-user-5-lastUpdated"
		s.Require().NoError(s.ephemeral.Set(s.ctx, malformed, "1700000000"))
		s.Require().NoError(s.ephemeral.Set(s.ctx, "mdl-course-2-sec-40-user-5-content", "orphan"))
		s.Require().NoError(s.ephemeral.Set(s.ctx, "other-app", "x"))

		res, err := sess.Cleanup(s.ctx, models.CleanupOptions{ClearAll: true})
		s.Require().NoError(err)
		s.Equal(12, res.Removed)
		keys, err := s.ephemeral.Keys(s.ctx)
		s.Require().NoError(err)
		s.ElementsMatch([]string{malformed, "other-app"}, keys)
	})

	s.Run("invalid options rejected", func() {
		s.SetupTest()
		sess := s.consenting()
		_, err := sess.Cleanup(s.ctx, models.CleanupOptions{MaxItemsToKeep: -1})
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})
}

func (s *SessionSuite) TestPreferences() {
	s.Run("section zero is never stored as last visited", func() {
		s.SetupTest()
		sess := s.consenting()
		sess.SetLastVisitedSection(s.ctx, 4)
		got, ok := sess.LastVisitedSection(s.ctx)
		s.True(ok)
		s.Equal(domain.SectionNum(4), got)

		sess.SetLastVisitedSection(s.ctx, 0)
		_, ok = sess.LastVisitedSection(s.ctx)
		s.False(ok)
		s.False(s.hasKey(s.durable, models.LastSectionKey(testCourse, testUser)))
	})

	s.Run("writes need consent but reads do not", func() {
		s.SetupTest()
		s.Require().NoError(s.durable.Set(s.ctx, models.LastSectionKey(testCourse, testUser), "7"))
		sess := s.newSession(s.params())
		sess.SetLastVisitedSection(s.ctx, 3)
		got, ok := sess.LastVisitedSection(s.ctx)
		s.True(ok)
		s.Equal(domain.SectionNum(7), got)

		sess.SetSectionZeroCollapsed(s.ctx, false)
		s.False(sess.SectionZeroExpanded(s.ctx))
	})

	s.Run("section zero collapse state", func() {
		s.SetupTest()
		sess := s.consenting()
		s.False(sess.SectionZeroExpanded(s.ctx), "collapsed by default")

		sess.SetSectionZeroCollapsed(s.ctx, false)
		s.True(sess.SectionZeroExpanded(s.ctx))
		v, _, err := s.durable.Get(s.ctx, models.CollapseKey(testCourse, testUser))
		s.Require().NoError(err)
		s.Equal("1", v)

		sess.SetSectionZeroCollapsed(s.ctx, true)
		s.False(sess.SectionZeroExpanded(s.ctx))
		s.False(s.hasKey(s.durable, models.CollapseKey(testCourse, testUser)))
	})
}

func (s *SessionSuite) TestConsent() {
	s.Run("deny then give", func() {
		s.SetupTest()
		sess := s.consenting()
		sess.PutContent(s.ctx, 1, "one")

		sess.SetConsent(s.ctx, false)
		snap := sess.Snapshot()
		s.Equal(models.ConsentDenied, snap.Consent)
		s.False(snap.DurableEnabled)
		s.False(snap.EphemeralEnabled)
		v, _, err := s.durable.Get(s.ctx, models.ConsentKey(testUser))
		s.Require().NoError(err)
		s.Equal("no", v)
		s.Equal(0, s.ephemeral.Len())

		sess.SetConsent(s.ctx, true)
		snap = sess.Snapshot()
		s.Equal(models.ConsentGiven, snap.Consent)
		s.True(snap.DurableEnabled)
		s.True(snap.EphemeralEnabled)
		v, _, err = s.durable.Get(s.ctx, models.ConsentKey(testUser))
		s.Require().NoError(err)
		s.Equal("yes", v)
	})

	s.Run("prompt answer is applied", func() {
		s.SetupTest()
		ctrl := gomock.NewController(s.T())
		prompter := mocks.NewMockPrompter(ctrl)
		prompter.EXPECT().RequestConsent(gomock.Any(), testUser).Return(true, nil)

		sess := s.newSession(s.params(), WithPrompter(prompter))
		s.Require().NoError(sess.OpenConsentPrompt(s.ctx))
		s.True(sess.ConsentGiven())
	})

	s.Run("prompt failure leaves consent unchanged", func() {
		s.SetupTest()
		ctrl := gomock.NewController(s.T())
		prompter := mocks.NewMockPrompter(ctrl)
		prompter.EXPECT().RequestConsent(gomock.Any(), testUser).Return(false, errors.New("dialog closed"))

		sess := s.newSession(s.params(), WithPrompter(prompter))
		s.Require().Error(sess.OpenConsentPrompt(s.ctx))
		s.Equal(models.ConsentUnset, sess.Consent())
	})

	s.Run("no prompter", func() {
		s.SetupTest()
		sess := s.newSession(s.params())
		s.ErrorIs(sess.OpenConsentPrompt(s.ctx), ErrNoPrompter)
	})
}

func (s *SessionSuite) TestEvents() {
	s.Run("page ready prompts after the delay", func() {
		s.SetupTest()
		ctrl := gomock.NewController(s.T())
		prompter := mocks.NewMockPrompter(ctrl)
		prompter.EXPECT().RequestConsent(gomock.Any(), testUser).Return(true, nil)

		sess := s.newSession(s.params(), WithPrompter(prompter))
		s.True(sess.OnPageReady(s.ctx))
		s.Equal([]time.Duration{DefaultPromptDelay}, s.sched.Pending())

		s.Equal(0, s.sched.Advance(400*time.Millisecond))
		s.Equal(1, s.sched.Advance(100*time.Millisecond))
		s.True(sess.ConsentGiven())
	})

	s.Run("page ready does not prompt once decided", func() {
		s.SetupTest()
		ctrl := gomock.NewController(s.T())
		sess := s.consenting(WithPrompter(mocks.NewMockPrompter(ctrl)))
		s.False(sess.OnPageReady(s.ctx))
		s.Empty(s.sched.Pending())
	})

	s.Run("tile click evicts only over capacity", func() {
		s.SetupTest()
		sess := s.consenting()
		for i := 0; i < 10; i++ {
			s.seedEntry(domain.SectionNum(i), models.FormatTimestamp(baseUnix-20+int64(i)))
		}
		s.False(sess.OnTileClick(s.ctx))

		s.seedEntry(10, models.FormatTimestamp(baseUnix-5))
		s.seedEntry(11, models.FormatTimestamp(baseUnix-4))
		s.True(sess.OnTileClick(s.ctx))
		s.Equal(12, sess.ContentCount(s.ctx), "eviction is deferred")

		s.Equal(1, s.sched.Advance(DefaultEvictDelay))
		s.Equal(10, sess.ContentCount(s.ctx))
	})

	s.Run("completion toggle refreshes the section", func() {
		s.SetupTest()
		ctrl := gomock.NewController(s.T())
		renderer := mocks.NewMockSectionRenderer(ctrl)
		renderer.EXPECT().RenderSection(gomock.Any(), testCourse, domain.SectionNum(3)).Return("<div>ticked</div>", nil)

		sess := s.consenting(WithRenderer(renderer))
		sess.PutContent(s.ctx, 0, "<div>landing</div>")
		sess.PutContent(s.ctx, 3, "<div>unticked</div>")

		sess.OnCompletionToggle(s.ctx, 3)
		_, ok := sess.Content(s.ctx, 0)
		s.False(ok, "landing section dropped at once")

		s.Equal(1, s.sched.Advance(DefaultRestoreDelay))
		html, ok := sess.Content(s.ctx, 3)
		s.True(ok)
		s.Equal("<div>ticked</div>", html)
	})

	s.Run("completion toggle drops the section when re-render fails", func() {
		s.SetupTest()
		ctrl := gomock.NewController(s.T())
		renderer := mocks.NewMockSectionRenderer(ctrl)
		renderer.EXPECT().RenderSection(gomock.Any(), testCourse, domain.SectionNum(3)).Return("", errors.New("gone"))

		sess := s.consenting(WithRenderer(renderer))
		sess.PutContent(s.ctx, 3, "<div>unticked</div>")
		sess.OnCompletionToggle(s.ctx, 3)
		s.sched.Advance(DefaultRestoreDelay)
		_, ok := sess.Content(s.ctx, 3)
		s.False(ok)
	})

	s.Run("close stops pending callbacks", func() {
		s.SetupTest()
		ctrl := gomock.NewController(s.T())
		prompter := mocks.NewMockPrompter(ctrl)

		sess := s.newSession(s.params(), WithPrompter(prompter))
		s.True(sess.OnPageReady(s.ctx))
		sess.Close()
		s.Equal(0, s.sched.Advance(time.Second))

		sess.OnPageReady(s.ctx)
		s.Empty(s.sched.Pending())
	})
}
