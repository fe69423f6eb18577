package notify_test

import (
	"context"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"mailroom.app/engine/internal/model"
	"mailroom.app/engine/internal/notify"
)

var _ = Describe("Registry", func() {
	var (
		registry *notify.Registry
		state    *memoryState
		ctx      context.Context
		session  model.UserID
	)

	BeforeEach(func() {
		ctx = context.Background()
		state = newMemoryState()
		registry = notify.New(state)
		session = model.UserID("4001")
	})

	Describe("AddOneShot", func() {
		It("should register a target that fires exactly once", func() {
			Expect(registry.AddOneShot(ctx, session, "@mod-team")).To(Succeed())

			first := registry.Mentions(ctx, session)
			Expect(first).To(ConsistOf("@mod-team"))

			second := registry.Mentions(ctx, session)
			Expect(second).To(BeEmpty())
		})

		It("should reject a duplicate registration", func() {
			Expect(registry.AddOneShot(ctx, session, "@mod-team")).To(Succeed())

			err := registry.AddOneShot(ctx, session, "@mod-team")
			Expect(err).To(MatchError(notify.ErrAlreadyPresent))
		})

		It("should allow re-registering after the entry fired", func() {
			Expect(registry.AddOneShot(ctx, session, "@mod-team")).To(Succeed())
			registry.Mentions(ctx, session)

			Expect(registry.AddOneShot(ctx, session, "@mod-team")).To(Succeed())
		})
	})

	Describe("AddSubscription", func() {
		It("should register a target that fires every time", func() {
			Expect(registry.AddSubscription(ctx, session, "@alice")).To(Succeed())

			Expect(registry.Mentions(ctx, session)).To(ConsistOf("@alice"))
			Expect(registry.Mentions(ctx, session)).To(ConsistOf("@alice"))
		})

		It("should reject a duplicate subscription", func() {
			Expect(registry.AddSubscription(ctx, session, "@alice")).To(Succeed())

			err := registry.AddSubscription(ctx, session, "@alice")
			Expect(err).To(MatchError(notify.ErrAlreadyPresent))
		})
	})

	Describe("RemoveSubscription", func() {
		It("should drop the target", func() {
			Expect(registry.AddSubscription(ctx, session, "@alice")).To(Succeed())
			Expect(registry.RemoveSubscription(ctx, session, "@alice")).To(Succeed())

			Expect(registry.Mentions(ctx, session)).To(BeEmpty())
		})

		It("should return ErrNotSubscribed for unknown targets", func() {
			err := registry.RemoveSubscription(ctx, session, "@nobody")
			Expect(err).To(MatchError(notify.ErrNotSubscribed))
		})
	})

	Describe("DrainOneShot", func() {
		It("should return and clear the pending set atomically", func() {
			Expect(registry.AddOneShot(ctx, session, "@mod-team")).To(Succeed())
			Expect(registry.AddOneShot(ctx, session, "@alice")).To(Succeed())

			Expect(registry.DrainOneShot(ctx, session)).To(ConsistOf("@mod-team", "@alice"))
			Expect(registry.DrainOneShot(ctx, session)).To(BeEmpty())
		})

		It("should leave subscriptions untouched", func() {
			Expect(registry.AddSubscription(ctx, session, "@alice")).To(Succeed())

			Expect(registry.DrainOneShot(ctx, session)).To(BeEmpty())
			Expect(registry.Subscribers(session)).To(ConsistOf("@alice"))
		})
	})

	Describe("Mentions", func() {
		It("should merge subscriptions with pending one-shot entries", func() {
			Expect(registry.AddSubscription(ctx, session, "@alice")).To(Succeed())
			Expect(registry.AddOneShot(ctx, session, "@mod-team")).To(Succeed())

			Expect(registry.Mentions(ctx, session)).To(ConsistOf("@alice", "@mod-team"))
			Expect(registry.Mentions(ctx, session)).To(ConsistOf("@alice"))
		})

		It("should deduplicate a target present in both sets", func() {
			Expect(registry.AddSubscription(ctx, session, "@alice")).To(Succeed())
			Expect(registry.AddOneShot(ctx, session, "@alice")).To(Succeed())

			Expect(registry.Mentions(ctx, session)).To(ConsistOf("@alice"))
		})

		It("should keep sessions independent", func() {
			other := model.UserID("4002")
			Expect(registry.AddOneShot(ctx, session, "@mod-team")).To(Succeed())

			Expect(registry.Mentions(ctx, other)).To(BeEmpty())
			Expect(registry.Mentions(ctx, session)).To(ConsistOf("@mod-team"))
		})
	})

	Describe("ClearSession", func() {
		It("should drop both sets for the session", func() {
			Expect(registry.AddSubscription(ctx, session, "@alice")).To(Succeed())
			Expect(registry.AddOneShot(ctx, session, "@mod-team")).To(Succeed())

			Expect(registry.ClearSession(ctx, session)).To(Succeed())
			Expect(registry.Mentions(ctx, session)).To(BeEmpty())
		})
	})

	Describe("persistence", func() {
		It("should survive a reload through the state store", func() {
			Expect(registry.AddSubscription(ctx, session, "@alice")).To(Succeed())
			Expect(registry.AddOneShot(ctx, session, "@mod-team")).To(Succeed())

			reloaded := notify.New(state)
			Expect(reloaded.Load()).To(Succeed())

			Expect(reloaded.Mentions(ctx, session)).To(ConsistOf("@alice", "@mod-team"))
		})
	})
})
