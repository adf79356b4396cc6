package cegid

import "strings"

// duplicateKeyPhrases are the SQL duplicate-key messages the entry endpoints
// are known to return when a document number is already taken. Matching is
// case-insensitive. The list follows upstream wording and breaks if it changes.
var duplicateKeyPhrases = []string{
	"duplicate key",
	"cannot insert duplicate key",
	"violation of primary key constraint",
	"violation of unique key constraint",
	"duplicate entry",
	"unique constraint failed",
	"clave duplicada",
	"infracción de la restricción primary key",
	"infraccion de la restriccion primary key",
	"no se puede insertar una clave duplicada",
}

// codeExistsPhrases are the messages returned when a sub-account code is taken.
var codeExistsPhrases = []string{
	"ya existe",
	"already exists",
	"código existente",
	"codigo existente",
}

// IsDuplicateKeyResponse reports whether body is a duplicate-key rejection.
func IsDuplicateKeyResponse(body string) bool {
	return containsAny(body, duplicateKeyPhrases)
}

func isCodeExistsResponse(body string) bool {
	return containsAny(body, codeExistsPhrases) || IsDuplicateKeyResponse(body)
}

func containsAny(body string, phrases []string) bool {
	lower := strings.ToLower(body)
	for _, p := range phrases {
		if strings.Contains(lower, p) {
			return true
		}
	}
	return false
}
