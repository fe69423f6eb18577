package thread_test

import (
	"context"
	"errors"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"mailroom.app/engine/common/id"
	"mailroom.app/engine/internal/history"
	"mailroom.app/engine/internal/model"
	"mailroom.app/engine/internal/scheduler"
	"mailroom.app/engine/internal/thread"
	"mailroom.app/engine/internal/transport"
)

var _ = Describe("Manager", func() {
	var (
		manager   *thread.Manager
		trans     *mockTransport
		logs      *mockLogStore
		notifier  *mockNotifier
		resolver  *mockResolver
		state     *memoryState
		sched     *scheduler.Scheduler
		ctx       context.Context
		recipient model.UserID
		staff     model.UserID
	)

	BeforeEach(func() {
		ctx = context.Background()
		trans = &mockTransport{}
		logs = &mockLogStore{}
		notifier = &mockNotifier{}
		resolver = &mockResolver{}
		state = newMemoryState()
		sched = scheduler.New()
		recipient = model.UserID("4001")
		staff = model.UserID("7001")

		err := id.Init(1)
		Expect(err).NotTo(HaveOccurred())

		manager = thread.NewManager(thread.Deps{
			Transport: trans,
			Presenter: passthroughPresenter{},
			Scheduler: sched,
			Notify:    notifier,
			Index:     resolver,
			Logs:      logs,
			State:     state,
			Config: &mockConfig{values: map[string]string{
				"mention":                    "@here",
				"thread_creation_response":   "welcome",
				"thread_close_response":      "goodbye",
				"thread_self_close_response": "self goodbye",
			}},
			Category: "sessions",
		})
	})

	AfterEach(func() {
		sched.Close()
	})

	openSession := func() *thread.Session {
		s, err := manager.Open(ctx, recipient, "alice", recipient)
		Expect(err).NotTo(HaveOccurred())
		return s
	}

	Describe("Open", func() {
		It("should provision a channel and create a log entry", func() {
			var logged model.LogRecord
			logs.createLogEntryFn = func(_ context.Context, rec model.LogRecord) (string, error) {
				logged = rec
				return "logkey", nil
			}

			s := openSession()
			Expect(s.Channel()).NotTo(BeEmpty())
			Expect(s.State()).To(Equal(model.SessionActive))
			Expect(logged.Recipient).To(Equal(recipient))
			Expect(logged.Open).To(BeTrue())
		})

		It("should announce the session in the staff channel and greet the recipient", func() {
			s := openSession()

			staffSide := trans.postedTo(s.Channel())
			Expect(staffSide).To(HaveLen(1))
			Expect(staffSide[0].Rendered.Body).To(HavePrefix("session_opened:"))
			Expect(staffSide[0].Rendered.Mentions).To(ConsistOf("@here"))

			dm := trans.postedTo(model.ChannelID("dm-" + string(recipient)))
			Expect(dm).To(HaveLen(1))
			Expect(dm[0].Rendered.Body).To(Equal("session_greeting:welcome"))
		})

		It("should reject a second open for the same recipient", func() {
			openSession()

			_, err := manager.Open(ctx, recipient, "alice", recipient)
			Expect(err).To(MatchError(thread.ErrDuplicateSession))
		})

		It("should release the reservation when channel creation fails", func() {
			trans.createChannelFn = func(_ context.Context, _, _ string) (model.ChannelID, error) {
				return "", transport.ErrTransient
			}

			_, err := manager.Open(ctx, recipient, "alice", recipient)
			Expect(err).To(HaveOccurred())

			trans.createChannelFn = nil
			openSession()
		})
	})

	Describe("Close", func() {
		It("should close immediately for a zero delay", func() {
			s := openSession()

			Expect(manager.Close(ctx, recipient, staff, 0, false, "resolved")).To(Succeed())

			_, err := manager.Get(recipient)
			Expect(err).To(MatchError(thread.ErrSessionNotFound))
			Expect(notifier.cleared).To(ConsistOf(recipient))

			dm := trans.postedTo(model.ChannelID("dm-" + string(recipient)))
			bodies := []string{}
			for _, p := range dm {
				bodies = append(bodies, p.Rendered.Body)
			}
			Expect(bodies).To(ContainElement("session_closed:resolved"))
			_ = s
		})

		It("should use the self-close response when the recipient closes their own session", func() {
			openSession()

			Expect(manager.Close(ctx, recipient, recipient, 0, false, "")).To(Succeed())

			dm := trans.postedTo(model.ChannelID("dm-" + string(recipient)))
			bodies := []string{}
			for _, p := range dm {
				bodies = append(bodies, p.Rendered.Body)
			}
			Expect(bodies).To(ContainElement("session_closed:self goodbye"))
		})

		It("should fall back to the shared close response for a staff close", func() {
			openSession()

			Expect(manager.Close(ctx, recipient, staff, 0, false, "")).To(Succeed())

			dm := trans.postedTo(model.ChannelID("dm-" + string(recipient)))
			bodies := []string{}
			for _, p := range dm {
				bodies = append(bodies, p.Rendered.Body)
			}
			Expect(bodies).To(ContainElement("session_closed:goodbye"))
		})

		It("should skip the close notice when silent", func() {
			openSession()
			before := len(trans.postedTo(model.ChannelID("dm-" + string(recipient))))

			Expect(manager.Close(ctx, recipient, staff, 0, true, "")).To(Succeed())

			after := len(trans.postedTo(model.ChannelID("dm-" + string(recipient))))
			Expect(after).To(Equal(before))
		})

		It("should move to CLOSING and announce the delay for a positive delay", func() {
			s := openSession()

			Expect(manager.Close(ctx, recipient, staff, time.Hour, false, "")).To(Succeed())
			Expect(s.State()).To(Equal(model.SessionClosing))

			staffSide := trans.postedTo(s.Channel())
			var scheduled *postedMessage
			for i := range staffSide {
				if staffSide[i].Rendered.Body == "close_scheduled:" {
					scheduled = &staffSide[i]
				}
			}
			Expect(scheduled).NotTo(BeNil())
			Expect(scheduled.Rendered.Footer).To(Equal("1 hour"))
		})

		It("should fire the scheduled close when the delay elapses", func() {
			openSession()

			Expect(manager.Close(ctx, recipient, staff, 10*time.Millisecond, false, "")).To(Succeed())

			Eventually(func() error {
				_, err := manager.Get(recipient)
				return err
			}).Should(MatchError(thread.ErrSessionNotFound))
		})

		It("should return ErrSessionNotFound for unknown recipients", func() {
			err := manager.Close(ctx, recipient, staff, 0, false, "")
			Expect(err).To(MatchError(thread.ErrSessionNotFound))
		})

		It("should leave the session CLOSING when the scheduled close fails", func() {
			s := openSession()
			logs.closeLogFn = func(_ context.Context, _ model.ChannelID, _ model.UserID, _ *string) (model.LogRecord, error) {
				return model.LogRecord{}, errors.New("db down")
			}

			Expect(manager.Close(ctx, recipient, staff, 5*time.Millisecond, false, "")).To(Succeed())

			Consistently(func() model.SessionState {
				return s.State()
			}, 100*time.Millisecond).Should(Equal(model.SessionClosing))
		})
	})

	Describe("CancelClose", func() {
		It("should return the session to ACTIVE and announce it", func() {
			s := openSession()
			Expect(manager.Close(ctx, recipient, staff, time.Hour, false, "")).To(Succeed())

			Expect(manager.CancelClose(ctx, recipient, staff)).To(Succeed())
			Expect(s.State()).To(Equal(model.SessionActive))

			staffSide := trans.postedTo(s.Channel())
			bodies := []string{}
			for _, p := range staffSide {
				bodies = append(bodies, p.Rendered.Body)
			}
			Expect(bodies).To(ContainElement("close_cancelled:"))

			Consistently(func() error {
				_, err := manager.Get(recipient)
				return err
			}, 50*time.Millisecond).Should(Succeed())
		})

		It("should return ErrNotScheduled on an active session", func() {
			openSession()

			err := manager.CancelClose(ctx, recipient, staff)
			Expect(err).To(MatchError(thread.ErrNotScheduled))
		})
	})

	Describe("Relay", func() {
		It("should post a recipient message to the staff channel with fan-out", func() {
			notifier.mentionsFn = func(_ context.Context, _ model.UserID) []string {
				return []string{"@alice", "@mod-team"}
			}
			s := openSession()

			err := manager.Relay(ctx, recipient, thread.RelayInput{
				Author:    recipient,
				Role:      model.RoleRecipient,
				LogicalID: "logical-1",
				Body:      "hello",
			})
			Expect(err).NotTo(HaveOccurred())

			staffSide := trans.postedTo(s.Channel())
			last := staffSide[len(staffSide)-1]
			Expect(last.Rendered.Body).To(Equal("recipient_message:hello"))
			Expect(last.Rendered.Mentions).To(ConsistOf("@alice", "@mod-team"))
			Expect(last.Rendered.OriginTag).To(Equal("logical-1"))
		})

		It("should post a staff reply to both channels", func() {
			s := openSession()

			err := manager.Relay(ctx, recipient, thread.RelayInput{
				Author:    staff,
				Role:      model.RoleStaff,
				LogicalID: "logical-2",
				Body:      "we are on it",
			})
			Expect(err).NotTo(HaveOccurred())

			staffSide := trans.postedTo(s.Channel())
			Expect(staffSide[len(staffSide)-1].Rendered.Body).To(Equal("staff_reply:we are on it"))

			dm := trans.postedTo(model.ChannelID("dm-" + string(recipient)))
			Expect(dm[len(dm)-1].Rendered.Body).To(Equal("staff_reply:we are on it"))
		})

		It("should append the message to the session log", func() {
			openSession()

			err := manager.Relay(ctx, recipient, thread.RelayInput{
				Author:    recipient,
				Role:      model.RoleRecipient,
				LogicalID: "logical-3",
				Body:      "hello",
			})
			Expect(err).NotTo(HaveOccurred())

			appended := logs.appendedMessages()
			Expect(appended).To(HaveLen(1))
			Expect(appended[0].LogicalID).To(Equal("logical-3"))
			Expect(appended[0].Role).To(Equal(model.RoleRecipient))
		})

		It("should cancel a pending close", func() {
			s := openSession()
			Expect(manager.Close(ctx, recipient, staff, time.Hour, false, "")).To(Succeed())

			err := manager.Relay(ctx, recipient, thread.RelayInput{
				Author:    recipient,
				Role:      model.RoleRecipient,
				LogicalID: "logical-4",
				Body:      "wait, one more thing",
			})
			Expect(err).NotTo(HaveOccurred())
			Expect(s.State()).To(Equal(model.SessionActive))
		})
	})

	Describe("Note", func() {
		It("should post to the staff channel only", func() {
			s := openSession()
			dmBefore := len(trans.postedTo(model.ChannelID("dm-" + string(recipient))))

			Expect(manager.Note(ctx, recipient, staff, "logical-5", "internal context")).To(Succeed())

			staffSide := trans.postedTo(s.Channel())
			Expect(staffSide[len(staffSide)-1].Rendered.Body).To(Equal("note:internal context"))

			dmAfter := len(trans.postedTo(model.ChannelID("dm-" + string(recipient))))
			Expect(dmAfter).To(Equal(dmBefore))

			appended := logs.appendedMessages()
			Expect(appended[len(appended)-1].Role).To(Equal(model.RoleSystemNote))
		})
	})

	Describe("EditMessage", func() {
		It("should edit the copy in both channels", func() {
			s := openSession()
			staffChannel := s.Channel()
			dmChannel := model.ChannelID("dm-" + string(recipient))

			resolver.findFn = func(_ context.Context, ch model.ChannelID, logicalID string) (transport.HistoryMessage, error) {
				ref := model.MessageID("staff-copy")
				if ch == dmChannel {
					ref = model.MessageID("dm-copy")
				}
				return transport.HistoryMessage{
					Ref:      ref,
					AuthorID: "engine",
					Rendered: transport.Rendered{OriginTag: logicalID, Role: model.RoleStaff},
				}, nil
			}

			edited := map[model.ChannelID]string{}
			trans.editMessageFn = func(_ context.Context, ch model.ChannelID, _ model.MessageID, msg transport.Rendered) error {
				edited[ch] = msg.Body
				return nil
			}

			Expect(manager.EditMessage(ctx, recipient, "logical-6", "corrected")).To(Succeed())
			Expect(edited).To(HaveKeyWithValue(staffChannel, "corrected"))
			Expect(edited).To(HaveKeyWithValue(dmChannel, "corrected"))
		})

		It("should return ErrNoEditableMessage when nothing resolves", func() {
			openSession()

			err := manager.EditMessage(ctx, recipient, "", "corrected")
			Expect(err).To(MatchError(thread.ErrNoEditableMessage))
		})
	})

	Describe("DeleteMessage", func() {
		It("should tolerate a recipient copy that is already gone", func() {
			s := openSession()
			dmChannel := model.ChannelID("dm-" + string(recipient))

			_ = s
			resolver.findFn = func(_ context.Context, ch model.ChannelID, logicalID string) (transport.HistoryMessage, error) {
				if ch == dmChannel {
					return transport.HistoryMessage{}, history.ErrNotFound
				}
				return transport.HistoryMessage{
					Ref:      model.MessageID("staff-copy"),
					AuthorID: "engine",
					Rendered: transport.Rendered{OriginTag: logicalID, Role: model.RoleStaff},
				}, nil
			}

			Expect(manager.DeleteMessage(ctx, recipient, "logical-7")).To(Succeed())
		})

		It("should map a vanished staff message to ErrNoEditableMessage", func() {
			openSession()

			resolver.findFn = func(_ context.Context, _ model.ChannelID, logicalID string) (transport.HistoryMessage, error) {
				return transport.HistoryMessage{
					Ref:      model.MessageID("staff-copy"),
					Rendered: transport.Rendered{OriginTag: logicalID, Role: model.RoleStaff},
				}, nil
			}
			trans.deleteMessageFn = func(_ context.Context, _ model.ChannelID, _ model.MessageID) error {
				return transport.ErrNotFound
			}

			err := manager.DeleteMessage(ctx, recipient, "logical-8")
			Expect(err).To(MatchError(thread.ErrNoEditableMessage))
		})
	})

	Describe("recovery", func() {
		It("should rebuild open sessions from persisted state", func() {
			openSession()

			rebuilt := thread.NewManager(thread.Deps{
				Transport: trans,
				Presenter: passthroughPresenter{},
				Scheduler: sched,
				Notify:    notifier,
				Index:     resolver,
				Logs:      logs,
				State:     state,
				Config:    &mockConfig{values: map[string]string{}},
				Category:  "sessions",
			})
			Expect(rebuilt.Recover(ctx)).To(Succeed())

			s, err := rebuilt.Get(recipient)
			Expect(err).NotTo(HaveOccurred())
			Expect(s.State()).To(Equal(model.SessionActive))
			Expect(s.Channel()).NotTo(BeEmpty())
		})

		It("should re-schedule persisted closures and fire overdue ones", func() {
			openSession()
			Expect(manager.Close(ctx, recipient, staff, time.Hour, false, "")).To(Succeed())

			rebuilt := thread.NewManager(thread.Deps{
				Transport: trans,
				Presenter: passthroughPresenter{},
				Scheduler: sched,
				Notify:    notifier,
				Index:     resolver,
				Logs:      logs,
				State:     state,
				Config:    &mockConfig{values: map[string]string{}},
				Category:  "sessions",
			})
			Expect(rebuilt.Recover(ctx)).To(Succeed())

			// Make the persisted closure overdue before re-scheduling.
			var records map[model.UserID]model.ClosureRecord
			Expect(state.LoadJSON("closures", &records)).To(Succeed())
			rec := records[recipient]
			rec.FireAt = time.Now().Add(-time.Minute)
			records[recipient] = rec
			Expect(state.StoreJSON(ctx, "closures", records)).To(Succeed())

			Expect(rebuilt.RecoverClosures(ctx)).To(Succeed())

			Eventually(func() error {
				_, err := rebuilt.Get(recipient)
				return err
			}).Should(MatchError(thread.ErrSessionNotFound))
		})
	})
})
