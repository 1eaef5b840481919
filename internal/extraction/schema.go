// Package extraction implements keyword-driven schema inference for
// document information extraction, plus helpers for parsing and rendering
// extraction results.
package extraction

import "strings"

// Property describes a single field the extraction service should populate.
type Property struct {
	Type        string `json:"type"`
	Description string `json:"description"`
}

// Schema is the JSON-Schema-shaped object sent to the extraction service:
// {"type":"object","properties":{name:{"type","description"},...}}.
type Schema struct {
	Type       string              `json:"type"`
	Properties map[string]Property `json:"properties"`
}

// fieldPattern maps a schema field to the query keywords that trigger it.
type fieldPattern struct {
	field       string
	keywords    []string
	valueType   string
	description string
}

// Korean and English keyword table. Matching is case-insensitive substring
// containment, not word-boundary tokenization; a keyword matching inside a
// longer word is accepted behavior, so do not "fix" it to tokenized matching.
var fieldPatterns = []fieldPattern{
	{"bank_name", []string{"은행", "bank"}, "string", "The name of bank"},
	{"account_number", []string{"계좌", "account"}, "string", "Account number"},
	{"balance", []string{"잔액", "balance", "잔고"}, "string", "Account balance"},
	{"name", []string{"이름", "성명", "name", "명의"}, "string", "Name of person or entity"},
	{"date", []string{"날짜", "일자", "date", "일시"}, "string", "Date information"},
	{"amount", []string{"금액", "가격", "비용", "amount", "price"}, "string", "Amount or price"},
	{"total", []string{"총", "합계", "total", "총액", "총합"}, "string", "Total amount"},
	{"address", []string{"주소", "address", "소재지"}, "string", "Address"},
	{"phone", []string{"전화", "연락처", "phone", "휴대폰"}, "string", "Phone number"},
	{"email", []string{"이메일", "email", "메일"}, "string", "Email address"},
	{"company", []string{"회사", "업체", "상호", "company", "기업"}, "string", "Company name"},
	{"transaction", []string{"거래", "transaction", "내역"}, "string", "Transaction details"},
	{"item", []string{"품목", "항목", "상품", "item", "제품"}, "string", "Item or product"},
	{"quantity", []string{"수량", "quantity", "개수"}, "string", "Quantity"},
	{"id_number", []string{"번호", "id", "식별", "주민"}, "string", "ID or reference number"},
}

// SchemaFromQuery infers an extraction schema from a free-text user query.
// Fields are additive: a query may trigger several at once. When nothing
// matches, a generic whole-document schema is returned, so the result is
// always non-empty.
func SchemaFromQuery(query string) Schema {
	schema := Schema{
		Type:       "object",
		Properties: make(map[string]Property),
	}

	lowerQuery := strings.ToLower(query)

	for _, p := range fieldPatterns {
		for _, keyword := range p.keywords {
			if strings.Contains(lowerQuery, keyword) {
				schema.Properties[p.field] = Property{
					Type:        p.valueType,
					Description: p.description,
				}
				break
			}
		}
	}

	if len(schema.Properties) == 0 {
		schema.Properties = map[string]Property{
			"title":        {Type: "string", Description: "Document title or main heading"},
			"main_content": {Type: "string", Description: "Main content or key information"},
			"summary":      {Type: "string", Description: "Brief summary of the document"},
		}
	}

	return schema
}
