package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"time"

	"github.com/gin-gonic/gin"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"mailroom.app/engine/internal/blocklist"
	"mailroom.app/engine/internal/http/handler"
	"mailroom.app/engine/internal/model"
)

var _ = Describe("BlockHandler", func() {
	var (
		router *gin.Engine
		blocks *mockBlocks
	)

	BeforeEach(func() {
		gin.SetMode(gin.TestMode)
		router = gin.New()
		blocks = &mockBlocks{}
		h := handler.NewBlockHandler(blocks)
		router.PUT("/blocks/:user_id", h.Put)
		router.DELETE("/blocks/:user_id", h.Delete)
	})

	Describe("Put", func() {
		It("parses the expiry and blocks the user", func() {
			var gotExpiry *time.Time
			blocks.blockFn = func(_ context.Context, user model.UserID, reason string, expiresAt *time.Time) error {
				Expect(user).To(Equal(model.UserID("4001")))
				Expect(reason).To(Equal("spamming"))
				gotExpiry = expiresAt
				return nil
			}
			blocks.isBlockedFn = func(_ context.Context, _ model.UserID) (model.BlockEntry, bool) {
				return model.BlockEntry{Reason: "spamming"}, true
			}

			body, _ := json.Marshal(map[string]string{"reason": "spamming", "until": "24h"})
			req := httptest.NewRequest(http.MethodPut, "/blocks/4001", bytes.NewBuffer(body))
			req.Header.Set("Content-Type", "application/json")
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			Expect(w.Code).To(Equal(http.StatusCreated))
			Expect(gotExpiry).NotTo(BeNil())
			Expect(*gotExpiry).To(BeTemporally("~", time.Now().Add(24*time.Hour), time.Minute))
		})

		It("returns 400 for a reserved reason", func() {
			blocks.blockFn = func(_ context.Context, _ model.UserID, _ string, _ *time.Time) error {
				return blocklist.ErrReservedReason
			}

			body, _ := json.Marshal(map[string]string{"reason": "System Message: nope"})
			req := httptest.NewRequest(http.MethodPut, "/blocks/4001", bytes.NewBuffer(body))
			req.Header.Set("Content-Type", "application/json")
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			Expect(w.Code).To(Equal(http.StatusBadRequest))
		})

		It("returns 409 when already blocked", func() {
			blocks.blockFn = func(_ context.Context, _ model.UserID, _ string, _ *time.Time) error {
				return blocklist.ErrAlreadyBlocked
			}

			body, _ := json.Marshal(map[string]string{"reason": "again"})
			req := httptest.NewRequest(http.MethodPut, "/blocks/4001", bytes.NewBuffer(body))
			req.Header.Set("Content-Type", "application/json")
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			Expect(w.Code).To(Equal(http.StatusConflict))
		})
	})

	Describe("Delete", func() {
		It("reports whether the cleared entry was automated", func() {
			blocks.unblockFn = func(_ context.Context, _ model.UserID) (model.BlockEntry, error) {
				return model.BlockEntry{Reason: "System Message: account not old enough", Internal: true}, nil
			}

			req := httptest.NewRequest(http.MethodDelete, "/blocks/4001", nil)
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			Expect(w.Code).To(Equal(http.StatusOK))
			var resp map[string]any
			Expect(json.Unmarshal(w.Body.Bytes(), &resp)).To(Succeed())
			Expect(resp["was_internal"]).To(BeTrue())
		})

		It("returns 404 when not blocked", func() {
			blocks.unblockFn = func(_ context.Context, _ model.UserID) (model.BlockEntry, error) {
				return model.BlockEntry{}, blocklist.ErrNotBlocked
			}

			req := httptest.NewRequest(http.MethodDelete, "/blocks/4001", nil)
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			Expect(w.Code).To(Equal(http.StatusNotFound))
		})
	})
})
