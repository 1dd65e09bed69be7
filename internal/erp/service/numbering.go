package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Numberer 工单编号生成器
// 有redis时按日递增序号 WO-20260101-0001，否则退化为随机后缀
type Numberer struct {
	rdb *redis.Client
	now func() time.Time
}

func NewNumberer(rdb *redis.Client) *Numberer {
	return &Numberer{rdb: rdb, now: time.Now}
}

// Next 生成下一个编号
func (n *Numberer) Next(ctx context.Context, prefix string) string {
	if prefix == "" {
		prefix = "WO"
	}
	day := n.now().Format("20060102")
	if n.rdb != nil {
		key := "nimo-mes:wo-seq:" + day
		seq, err := n.rdb.Incr(ctx, key).Result()
		if err == nil {
			if seq == 1 {
				n.rdb.Expire(ctx, key, 48*time.Hour)
			}
			return fmt.Sprintf("%s-%s-%04d", prefix, day, seq)
		}
	}
	suffix := strings.ToUpper(strings.ReplaceAll(uuid.New().String(), "-", "")[:8])
	return fmt.Sprintf("%s-%s-%s", prefix, day, suffix)
}

// splitNumber 子工单编号：父单号-S序号
func splitNumber(parent string, seq int64) string {
	return fmt.Sprintf("%s-S%d", parent, seq)
}
