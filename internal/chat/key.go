// Package chat は1対1会話のドメインロジックを提供する。
// 参加者ペアから正準な会話レコードを解決するリゾルバー、
// メッセージログの追記・取得を行うストア、
// それらを束ねる会話コントローラーからなる。
package chat

import "sort"

// Key は参加者IDの集合から正準キーを作る純関数。
// 通常の辞書順で昇順ソートし、重複を取り除く。
// 引数の順序によらず同じ結果を返すため、会話の同一性判定に使える。
func Key(userIDs []string) []string {
	seen := make(map[string]struct{}, len(userIDs))
	key := make([]string, 0, len(userIDs))
	for _, id := range userIDs {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		key = append(key, id)
	}
	sort.Strings(key)
	return key
}
