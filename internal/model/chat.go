package model

import "time"

// Chat は2人の参加者を結ぶ会話レコードを表す。
// UserIDsは正規化済み（昇順ソート・重複排除）の参加者ID列。
// 同一ペアに対してChatは高々1件しか存在しない（chats.pair_keyのUNIQUE制約で保証）。
type Chat struct {
	ID        string
	UserIDs   []string
	Users     []User // 作成時点のユーザースナップショット
	CreatedAt time.Time
}

// HasParticipant は指定ユーザーがこの会話の参加者かどうかを返す。
func (c *Chat) HasParticipant(userID string) bool {
	for _, id := range c.UserIDs {
		if id == userID {
			return true
		}
	}
	return false
}

// Message は会話ログの1エントリを表す。追記専用で、変更・削除されない。
// Senderは送信時点のユーザースナップショット。
type Message struct {
	ID        string
	ChatID    string
	Sender    User
	Text      string
	CreatedAt time.Time
}
