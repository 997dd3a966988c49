package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/chatman/internal/chat"
	"github.com/hitoshi/chatman/internal/middleware"
	"github.com/hitoshi/chatman/internal/model"
)

// ChatControllerInterface は会話ハンドラーが必要とするコントローラーインターフェース。
type ChatControllerInterface interface {
	// Open は自分と相手の会話を解決し、メッセージ読み込み済みのハンドルを返す。
	Open(ctx context.Context, myID, partnerID string) (*chat.Conversation, error)
}

// ChatFinder は会話の検索に必要なインターフェース。
// repository.ChatRepositoryの部分集合として定義する。
type ChatFinder interface {
	FindByID(ctx context.Context, id string) (*model.Chat, error)
}

// MessageStoreInterface は会話ハンドラーが必要とするメッセージストアインターフェース。
type MessageStoreInterface interface {
	Append(ctx context.Context, chatID string, sender model.User, text string, createdAt time.Time) (*model.Message, error)
	List(ctx context.Context, chatID string) ([]*model.Message, error)
}

// ChatHandler は1対1会話のHTTPハンドラー。
type ChatHandler struct {
	controller ChatControllerInterface
	chats      ChatFinder
	store      MessageStoreInterface
}

// NewChatHandler はChatHandlerを生成する。
func NewChatHandler(controller ChatControllerInterface, chats ChatFinder, store MessageStoreInterface) *ChatHandler {
	return &ChatHandler{
		controller: controller,
		chats:      chats,
		store:      store,
	}
}

// openChatRequest は会話オープンリクエストのボディ。
type openChatRequest struct {
	PartnerID string `json:"partner_id"`
}

// sendMessageRequest はメッセージ送信リクエストのボディ。
type sendMessageRequest struct {
	Text string `json:"text"`
}

// chatResponse は会話情報のAPIレスポンス。
type chatResponse struct {
	ID        string         `json:"id"`
	UserIDs   []string       `json:"user_ids"`
	Users     []userResponse `json:"users"`
	CreatedAt time.Time      `json:"created_at"`
}

// messageResponse はメッセージのAPIレスポンス。
type messageResponse struct {
	ID        string       `json:"id"`
	ChatID    string       `json:"chat_id"`
	Sender    userResponse `json:"sender"`
	Text      string       `json:"text"`
	CreatedAt time.Time    `json:"created_at"`
}

// openChatResponse は会話オープンのAPIレスポンス。
// 解決済み会話と読み込み済みメッセージ一覧（新しいものが先頭）を含む。
type openChatResponse struct {
	Chat     chatResponse      `json:"chat"`
	Messages []messageResponse `json:"messages"`
}

// OpenChat は自分と相手の会話を解決し、メッセージ一覧とともに返す。
// 会話が存在しない場合は新規作成する（同時作成は1件に収束する）。
// POST /api/chats/open
func (h *ChatHandler) OpenChat(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeAPIErrorResponse(w, http.StatusUnauthorized, model.NewAuthFailedError("認証が必要です"))
		return
	}

	var req openChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, invalidRequestError())
		return
	}

	if req.PartnerID == "" {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidParticipantsError())
		return
	}

	conv, err := h.controller.Open(r.Context(), userID, req.PartnerID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	resp := openChatResponse{
		Chat:     toChatResponse(conv.Chat()),
		Messages: toMessageResponses(conv.Messages()),
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

// ListMessages は会話の全メッセージをcreatedAt降順で返す。
// GET /api/chats/{id}/messages
func (h *ChatHandler) ListMessages(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeAPIErrorResponse(w, http.StatusUnauthorized, model.NewAuthFailedError("認証が必要です"))
		return
	}

	chatID := chi.URLParam(r, "id")

	record, err := h.findParticipantChat(r.Context(), chatID, userID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	messages, err := h.store.List(r.Context(), record.ID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(toMessageResponses(messages))
}

// SendMessage は会話にメッセージを追記する。
// 送信者のユーザースナップショットは会話レコードのusersから取る。
// POST /api/chats/{id}/messages
func (h *ChatHandler) SendMessage(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeAPIErrorResponse(w, http.StatusUnauthorized, model.NewAuthFailedError("認証が必要です"))
		return
	}

	chatID := chi.URLParam(r, "id")

	var req sendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, invalidRequestError())
		return
	}

	if isBlank(req.Text) {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewEmptyMessageError())
		return
	}

	record, err := h.findParticipantChat(r.Context(), chatID, userID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	sender, ok := senderSnapshot(record, userID)
	if !ok {
		// 参加者チェック通過後に到達しないはずだが、スナップショット欠落に備える
		slog.Error("sender snapshot missing",
			slog.String("chat_id", record.ID),
			slog.String("user_id", userID),
		)
		handleServiceError(w, model.NewNotParticipantError())
		return
	}

	msg, err := h.store.Append(r.Context(), record.ID, sender, req.Text, time.Now())
	if err != nil {
		handleServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(toMessageResponse(msg))
}

// findParticipantChat は会話を取得し、リクエストユーザーが参加者であることを検証する。
func (h *ChatHandler) findParticipantChat(ctx context.Context, chatID, userID string) (*model.Chat, error) {
	record, err := h.chats.FindByID(ctx, chatID)
	if err != nil {
		return nil, err
	}
	if record == nil {
		return nil, model.NewChatNotFoundError(chatID)
	}
	if !record.HasParticipant(userID) {
		return nil, model.NewNotParticipantError()
	}
	return record, nil
}

// senderSnapshot は会話レコードのスナップショット列から送信者を取り出す。
func senderSnapshot(record *model.Chat, userID string) (model.User, bool) {
	for _, u := range record.Users {
		if u.ID == userID {
			return u, true
		}
	}
	return model.User{}, false
}

// isBlank は空白のみの文字列かを判定する。
func isBlank(s string) bool {
	for _, r := range s {
		if r != ' ' && r != '\t' && r != '\n' && r != '\r' {
			return false
		}
	}
	return true
}

// --- レスポンス変換 ---

// toChatResponse はmodel.ChatからAPIレスポンスに変換する。
func toChatResponse(record *model.Chat) chatResponse {
	users := make([]userResponse, 0, len(record.Users))
	for i := range record.Users {
		users = append(users, toUserResponse(&record.Users[i]))
	}
	return chatResponse{
		ID:        record.ID,
		UserIDs:   record.UserIDs,
		Users:     users,
		CreatedAt: record.CreatedAt,
	}
}

// toMessageResponse はmodel.MessageからAPIレスポンスに変換する。
func toMessageResponse(msg *model.Message) messageResponse {
	return messageResponse{
		ID:        msg.ID,
		ChatID:    msg.ChatID,
		Sender:    toUserResponse(&msg.Sender),
		Text:      msg.Text,
		CreatedAt: msg.CreatedAt,
	}
}

// toMessageResponses はメッセージのスライスをAPIレスポンスに変換する。
// nilスライスでも空配列としてシリアライズされるようにする。
func toMessageResponses(messages []*model.Message) []messageResponse {
	out := make([]messageResponse, 0, len(messages))
	for _, m := range messages {
		out = append(out, toMessageResponse(m))
	}
	return out
}

// --- ヘルパー関数 ---

// invalidRequestError はリクエストボディ解析失敗の統一エラーを生成する。
func invalidRequestError() *model.APIError {
	return &model.APIError{
		Code:     "INVALID_REQUEST",
		Message:  "リクエストボディの解析に失敗しました。",
		Category: "validation",
		Action:   "正しいJSON形式でリクエストしてください。",
	}
}

// writeAPIErrorResponse は統一エラーフォーマットでエラーレスポンスを書き込む。
func writeAPIErrorResponse(w http.ResponseWriter, statusCode int, apiErr *model.APIError) {
	middleware.WriteErrorResponse(w, statusCode, apiErr)
}

// handleServiceError はサービス層から返されたエラーを適切なHTTPステータスコードに変換する。
func handleServiceError(w http.ResponseWriter, err error) {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		statusCode := mapAPIErrorToHTTPStatus(apiErr)
		writeAPIErrorResponse(w, statusCode, apiErr)
		return
	}

	// APIError以外のエラーは内部サーバーエラーとして扱う
	slog.Error("internal server error", slog.String("error", err.Error()))
	middleware.WriteInternalServerError(w)
}

// mapAPIErrorToHTTPStatus はAPIErrorコードからHTTPステータスコードにマッピングする。
func mapAPIErrorToHTTPStatus(apiErr *model.APIError) int {
	switch apiErr.Code {
	case model.ErrCodeAuthFailed:
		return http.StatusUnauthorized
	case model.ErrCodeEmptyMessage, model.ErrCodeInvalidParticipants:
		return http.StatusBadRequest
	case model.ErrCodeNotParticipant:
		return http.StatusForbidden
	case model.ErrCodeChatNotFound, model.ErrCodeUserNotFound:
		return http.StatusNotFound
	case model.ErrCodeChatNotReady:
		return http.StatusConflict
	case model.ErrCodeDirectoryWriteFailed:
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}
