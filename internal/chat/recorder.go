package chat

import "time"

// Recorder は会話ドメインのメトリクス収集インターフェース。
// 実装はinternal/metricsのCollector。nilの場合は記録しない。
type Recorder interface {
	// RecordChatCreated は会話の新規作成を記録する。
	RecordChatCreated()
	// RecordChatReused は既存会話の再利用を記録する。
	RecordChatReused()
	// RecordResolveConflict は同時作成の競合（挿入に敗れた解決）を記録する。
	RecordResolveConflict()
	// RecordMessageSent はメッセージ送信と所要時間を記録する。
	RecordMessageSent(duration time.Duration)
}
