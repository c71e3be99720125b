// app/seenmw.go
package app

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
)

const lastSeenKeyPrefix = "lending:lastseen:"

type SeenToucher interface {
	TouchUserSeen(ctx context.Context, userID string) error
}

// TouchLastSeen 请求处理完后再记录；Redis SETNX 节流，每个员工每 throttle 最多写一次库
func TouchLastSeen(users SeenToucher, rdb *redis.Client, throttle time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		uid := c.GetString("userID")
		if uid == "" || c.Writer.Status() == http.StatusUnauthorized {
			return
		}
		ctx := c.Request.Context()
		if ok, _ := rdb.SetNX(ctx, lastSeenKeyPrefix+uid, "1", throttle).Result(); ok {
			_ = users.TouchUserSeen(ctx, uid) // 忽略错误，不影响响应
		}
	}
}
