package payment

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ErrInvalidSignature возвращается, если подпись уведомления не прошла проверку.
var ErrInvalidSignature = errors.New("invalid webhook signature")

// SignatureHeader — имя HTTP-заголовка с подписью уведомления.
const SignatureHeader = "Stripe-Signature"

// DefaultTolerance — допустимое расхождение между временем подписи и текущим временем.
const DefaultTolerance = 5 * time.Minute

// EventCheckoutSessionCompleted — тип события об успешном завершении оплаты.
const EventCheckoutSessionCompleted = "checkout.session.completed"

// Event описывает асинхронное уведомление платёжной системы.
type Event struct {
	ID   string `json:"id"`
	Type string `json:"type"`
	Data struct {
		Object json.RawMessage `json:"object"`
	} `json:"data"`
}

// Session извлекает платёжную сессию из тела события.
func (e *Event) Session() (*CheckoutSession, error) {
	var session CheckoutSession
	if err := json.Unmarshal(e.Data.Object, &session); err != nil {
		return nil, fmt.Errorf("decode session: %w", err)
	}
	return &session, nil
}

// ConstructEvent проверяет подпись тела уведомления и разбирает его в Event.
// Заголовок подписи имеет вид "t=<unix>,v1=<hex hmac-sha256>"; подписывается
// строка "<t>.<payload>" ключом secret. Уведомление с подписью старше
// tolerance отклоняется.
func ConstructEvent(payload []byte, sigHeader, secret string, tolerance time.Duration) (*Event, error) {
	timestamp, signatures, err := parseSignatureHeader(sigHeader)
	if err != nil {
		return nil, err
	}

	if tolerance > 0 {
		age := time.Since(time.Unix(timestamp, 0))
		if age > tolerance || age < -tolerance {
			return nil, ErrInvalidSignature
		}
	}

	expected := computeSignature(timestamp, payload, secret)

	valid := false
	for _, sig := range signatures {
		decoded, err := hex.DecodeString(sig)
		if err != nil {
			continue
		}
		if hmac.Equal(decoded, expected) {
			valid = true
			break
		}
	}
	if !valid {
		return nil, ErrInvalidSignature
	}

	var event Event
	if err := json.Unmarshal(payload, &event); err != nil {
		return nil, fmt.Errorf("decode event: %w", err)
	}

	return &event, nil
}

func parseSignatureHeader(header string) (int64, []string, error) {
	if header == "" {
		return 0, nil, ErrInvalidSignature
	}

	var timestamp int64
	var signatures []string

	for _, part := range strings.Split(header, ",") {
		kv := strings.SplitN(strings.TrimSpace(part), "=", 2)
		if len(kv) != 2 {
			continue
		}
		switch kv[0] {
		case "t":
			ts, err := strconv.ParseInt(kv[1], 10, 64)
			if err != nil {
				return 0, nil, ErrInvalidSignature
			}
			timestamp = ts
		case "v1":
			signatures = append(signatures, kv[1])
		}
	}

	if timestamp == 0 || len(signatures) == 0 {
		return 0, nil, ErrInvalidSignature
	}

	return timestamp, signatures, nil
}

func computeSignature(timestamp int64, payload []byte, secret string) []byte {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(strconv.FormatInt(timestamp, 10)))
	mac.Write([]byte("."))
	mac.Write(payload)
	return mac.Sum(nil)
}
