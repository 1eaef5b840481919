package extraction

import (
	"fmt"
	"strings"
)

// fieldLabels translates known extraction field keys to labeled display
// strings for chat context. Unmapped keys fall back to the raw key.
var fieldLabels = map[string]string{
	"bank_name":      "🏦 은행명",
	"account_number": "💳 계좌번호",
	"balance":        "💰 잔액",
	"name":           "👤 이름",
	"date":           "📅 날짜",
	"amount":         "💵 금액",
	"total":          "📊 총액",
	"address":        "📍 주소",
	"phone":          "📞 전화번호",
	"email":          "✉️ 이메일",
	"company":        "🏢 회사명",
	"transaction":    "📝 거래내역",
	"item":           "📦 품목",
	"quantity":       "🔢 수량",
	"id_number":      "🔖 번호",
	"title":          "📑 제목",
	"main_content":   "📄 주요 내용",
	"summary":        "📝 요약",
}

// FormatExtractedData renders extracted fields as a human-readable block for
// embedding into chat context. Nil and empty-string values are skipped;
// field order is preserved.
func FormatExtractedData(fields Fields) string {
	lines := []string{"📋 **추출된 정보:**", ""}

	for _, field := range fields {
		if field.Value == nil {
			continue
		}
		if s, ok := field.Value.(string); ok && s == "" {
			continue
		}
		label, ok := fieldLabels[field.Key]
		if !ok {
			label = field.Key
		}
		lines = append(lines, fmt.Sprintf("%s: %v", label, field.Value))
	}

	return strings.Join(lines, "\n")
}
