package worker_test

import (
	"context"
	"errors"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"mailroom.app/engine/internal/model"
	"mailroom.app/engine/internal/queue"
	"mailroom.app/engine/internal/thread"
	"mailroom.app/engine/internal/worker"
)

var _ = Describe("InboundProcessor", func() {
	var (
		processor *worker.InboundProcessor
		sessions  *mockSessionManager
		blocks    *mockBlocklist
		config    *mockAgeConfig
		ctx       context.Context
		recipient model.UserID
	)

	inbound := func(created *time.Time) queue.Message {
		return queue.Message{
			ID:               "1-0",
			TaskType:         queue.TaskTypeInboundMessage,
			RecipientID:      recipient,
			RecipientName:    "alice",
			AccountCreatedAt: created,
			LogicalID:        "logical-1",
			Body:             "hello",
			Attempt:          1,
		}
	}

	BeforeEach(func() {
		ctx = context.Background()
		sessions = &mockSessionManager{}
		blocks = &mockBlocklist{}
		config = &mockAgeConfig{}
		recipient = model.UserID("4001")
		processor = worker.NewInboundProcessor(sessions, blocks, config)
	})

	Context("when no session exists", func() {
		It("should open one and relay the message", func() {
			Expect(processor.Process(ctx, inbound(nil))).To(Succeed())

			Expect(sessions.opened).To(ConsistOf(recipient))
			Expect(sessions.relayed).To(HaveLen(1))
			Expect(sessions.relayed[0].Role).To(Equal(model.RoleRecipient))
			Expect(sessions.relayed[0].Body).To(Equal("hello"))
		})

		It("should tolerate losing the open race", func() {
			sessions.openFn = func(_ context.Context, _ model.UserID, _ string, _ model.UserID) (*thread.Session, error) {
				return nil, thread.ErrDuplicateSession
			}

			Expect(processor.Process(ctx, inbound(nil))).To(Succeed())
			Expect(sessions.relayed).To(HaveLen(1))
		})

		It("should surface open failures for retry", func() {
			sessions.openFn = func(_ context.Context, _ model.UserID, _ string, _ model.UserID) (*thread.Session, error) {
				return nil, errors.New("gateway unavailable")
			}

			err := processor.Process(ctx, inbound(nil))
			Expect(err).To(HaveOccurred())
			Expect(sessions.relayed).To(BeEmpty())
		})
	})

	Context("when a session exists", func() {
		BeforeEach(func() {
			sessions.getFn = func(_ model.UserID) (*thread.Session, error) {
				return &thread.Session{}, nil
			}
		})

		It("should relay without opening", func() {
			Expect(processor.Process(ctx, inbound(nil))).To(Succeed())
			Expect(sessions.opened).To(BeEmpty())
			Expect(sessions.relayed).To(HaveLen(1))
		})
	})

	Context("when the sender is blocked", func() {
		It("should drop the message without error", func() {
			blocks.isBlockedFn = func(_ context.Context, _ model.UserID) (model.BlockEntry, bool) {
				return model.BlockEntry{Reason: "spamming"}, true
			}

			Expect(processor.Process(ctx, inbound(nil))).To(Succeed())
			Expect(sessions.opened).To(BeEmpty())
			Expect(sessions.relayed).To(BeEmpty())
		})
	})

	Context("account age gate", func() {
		It("should place a temporary automated block on young accounts", func() {
			config.minAge = 48 * time.Hour
			created := time.Now().Add(-time.Hour)

			var expiry *time.Time
			blocks.blockInternalFn = func(_ context.Context, _ model.UserID, reason string, expiresAt *time.Time) (bool, error) {
				Expect(reason).To(Equal("account not old enough"))
				expiry = expiresAt
				return true, nil
			}

			Expect(processor.Process(ctx, inbound(&created))).To(Succeed())
			Expect(sessions.relayed).To(BeEmpty())
			Expect(expiry).NotTo(BeNil())
			Expect(*expiry).To(BeTemporally("~", created.Add(48*time.Hour), time.Second))
		})

		It("should pass accounts older than the minimum", func() {
			config.minAge = 48 * time.Hour
			created := time.Now().Add(-72 * time.Hour)

			Expect(processor.Process(ctx, inbound(&created))).To(Succeed())
			Expect(sessions.relayed).To(HaveLen(1))
			Expect(blocks.internalBlocks).To(BeEmpty())
		})

		It("should skip the gate when no minimum is configured", func() {
			created := time.Now()

			Expect(processor.Process(ctx, inbound(&created))).To(Succeed())
			Expect(sessions.relayed).To(HaveLen(1))
		})
	})
})
