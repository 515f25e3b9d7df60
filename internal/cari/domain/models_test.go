package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFoldSearch(t *testing.T) {
	cases := map[string]string{
		"ÖZTÜRK Turizm": "öztürk turizm",
		"İSTANBUL":      "istanbul",
		"ISTANBUL":      "istanbul",
		"ıstanbul":      "istanbul",
		"Şule Işık":     "şule isik",
		"ÇAĞDAŞ":        "çağdaş",
	}
	for in, want := range cases {
		assert.Equal(t, want, FoldSearch(in), in)
	}
}

func TestSearchDocumentCoversContactFields(t *testing.T) {
	doc := Account{
		Name:        "Ege Yapı",
		CariCode:    "CR01HZK8QX",
		ContactName: "Ayşe",
		Email:       "AYSE@EGE.COM.TR",
		Phone:       "+90 232",
		TaxNumber:   "1234567890",
	}.SearchDocument()

	for _, want := range []string{"ege yapi", "cr01hzk8qx", "ayşe", "ayse@ege.com.tr", "+90 232", "1234567890"} {
		assert.Contains(t, doc, want)
	}
	assert.NotContains(t, doc, "Ege")
}
