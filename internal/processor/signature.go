package processor

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/example/storecore/internal/errs"
)

// 签名头格式：t=<unix 秒>,v1=<hex hmac-sha256>
// 签名内容为 "<t>.<原始报文>"，验签必须发生在任何解析/落库之前

// Sign 按处理商的约定生成签名头（测试与本地联调用）
func Sign(secret string, at time.Time, payload []byte) string {
	ts := strconv.FormatInt(at.Unix(), 10)
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(ts))
	mac.Write([]byte("."))
	mac.Write(payload)
	return fmt.Sprintf("t=%s,v1=%s", ts, hex.EncodeToString(mac.Sum(nil)))
}

// VerifySignature 校验 webhook 签名
// 任何缺失、格式错误、过期或摘要不匹配都返回签名错误（永久拒绝，不触发重试）
func VerifySignature(payload []byte, header, secret string, tolerance time.Duration) error {
	if header == "" {
		return errs.Signature("missing signature header")
	}
	if secret == "" {
		return errs.Signature("webhook secret is not configured")
	}

	var ts int64
	var sig string
	for _, part := range strings.Split(header, ",") {
		kv := strings.SplitN(strings.TrimSpace(part), "=", 2)
		if len(kv) != 2 {
			continue
		}
		switch kv[0] {
		case "t":
			v, err := strconv.ParseInt(kv[1], 10, 64)
			if err != nil {
				return errs.Signature("invalid signature timestamp")
			}
			ts = v
		case "v1":
			sig = kv[1]
		}
	}
	if ts == 0 || sig == "" {
		return errs.Signature("malformed signature header")
	}

	if tolerance > 0 {
		drift := time.Since(time.Unix(ts, 0))
		if drift < 0 {
			drift = -drift
		}
		if drift > tolerance {
			return errs.Signature("signature timestamp outside tolerance")
		}
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(strconv.FormatInt(ts, 10)))
	mac.Write([]byte("."))
	mac.Write(payload)
	expected := hex.EncodeToString(mac.Sum(nil))

	got, err := hex.DecodeString(sig)
	if err != nil {
		return errs.Signature("invalid signature encoding")
	}
	want, _ := hex.DecodeString(expected)
	if !hmac.Equal(got, want) {
		return errs.Signature("signature mismatch")
	}
	return nil
}
