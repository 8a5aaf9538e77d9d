package idgen

import (
	"fmt"
	"sync"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// ============================================================================
// 流水号生成
// ============================================================================
//
// 流水号要求全局唯一、趋势递增（便于索引）、不暴露业务量。
// 底层使用雪花算法：41 位时间戳 + 10 位节点 + 12 位序列号。
// 多实例部署时每个实例配置不同的 node_id。
// ============================================================================

var (
	node *snowflake.Node
	once sync.Once
	mu   sync.Mutex
)

// Init 初始化雪花节点，只生效一次
func Init(nodeID int64) {
	once.Do(func() {
		snowflake.Epoch = 1704067200000 // 2024-01-01 00:00:00 UTC
		n, err := snowflake.NewNode(nodeID)
		if err != nil {
			log.Fatal().Err(err).Int64("node_id", nodeID).Msg("初始化雪花节点失败")
		}
		mu.Lock()
		node = n
		mu.Unlock()
	})
}

// NextID 生成下一个ID
func NextID() int64 {
	mu.Lock()
	n := node
	mu.Unlock()
	if n == nil {
		Init(1)
		mu.Lock()
		n = node
		mu.Unlock()
	}
	return n.Generate().Int64()
}

func generate(prefix string, at time.Time) string {
	id := NextID()
	return fmt.Sprintf("%s%s%019d", prefix, at.Format("20060102"), id)
}

// GenerateTxnNo 余额流水号，日期取流水的记账时间
// 格式：BL + 年月日 + 雪花ID，例如 BL202401150000123456789012345
func GenerateTxnNo(at time.Time) string {
	if at.IsZero() {
		at = time.Now()
	}
	return generate("BL", at)
}

// GenerateEventID 告警等事件 ID
func GenerateEventID() string {
	return uuid.NewString()
}
