package token

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// HeaderName 是携带签名的HTTP头
const HeaderName = "X-Signature"

// DefaultTolerance 是签名时间戳允许的最大偏差
const DefaultTolerance = 5 * time.Minute

var (
	ErrMalformedHeader = errors.New("token: malformed signature header")
	ErrBadSignature    = errors.New("token: signature mismatch")
	ErrExpired         = errors.New("token: signature timestamp outside tolerance")
)

// Signer 使用共享密钥对请求体做带时间戳的HMAC-SHA256签名。
// 头部格式: t={unix秒},v1={hex签名}，签名内容为 "{t}.{payload}"
type Signer struct {
	secret    []byte
	tolerance time.Duration
	now       func() time.Time
}

// NewSigner 创建签名器，tolerance 为0时使用 DefaultTolerance
func NewSigner(secret string, tolerance time.Duration) *Signer {
	if tolerance <= 0 {
		tolerance = DefaultTolerance
	}
	return &Signer{secret: []byte(secret), tolerance: tolerance, now: time.Now}
}

// GenerateSecret 生成一个密码学安全的32字节随机密钥（hex编码）
func GenerateSecret() (string, error) {
	key := make([]byte, 32)
	if _, err := rand.Read(key); err != nil {
		return "", fmt.Errorf("无法生成安全的密钥: %w", err)
	}
	return hex.EncodeToString(key), nil
}

func (s *Signer) compute(ts int64, payload []byte) []byte {
	mac := hmac.New(sha256.New, s.secret)
	mac.Write([]byte(strconv.FormatInt(ts, 10)))
	mac.Write([]byte("."))
	mac.Write(payload)
	return mac.Sum(nil)
}

// Sign 返回当前时刻的签名头
func (s *Signer) Sign(payload []byte) string {
	return s.SignAt(payload, s.now())
}

// SignAt 使用指定时间戳签名
func (s *Signer) SignAt(payload []byte, at time.Time) string {
	ts := at.Unix()
	return fmt.Sprintf("t=%d,v1=%s", ts, hex.EncodeToString(s.compute(ts, payload)))
}

// Verify 校验签名头与请求体是否匹配，并检查时间戳是否在容忍范围内
func (s *Signer) Verify(payload []byte, header string) error {
	var ts int64
	var sigs [][]byte
	for _, part := range strings.Split(header, ",") {
		k, v, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			return ErrMalformedHeader
		}
		switch k {
		case "t":
			parsed, err := strconv.ParseInt(v, 10, 64)
			if err != nil {
				return ErrMalformedHeader
			}
			ts = parsed
		case "v1":
			sig, err := hex.DecodeString(v)
			if err != nil {
				return ErrMalformedHeader
			}
			sigs = append(sigs, sig)
		}
	}
	if ts == 0 || len(sigs) == 0 {
		return ErrMalformedHeader
	}

	age := s.now().Sub(time.Unix(ts, 0))
	if age > s.tolerance || age < -s.tolerance {
		return ErrExpired
	}

	expected := s.compute(ts, payload)
	for _, sig := range sigs {
		// 时间恒定的比较，防止时序攻击
		if hmac.Equal(expected, sig) {
			return nil
		}
	}
	return ErrBadSignature
}
