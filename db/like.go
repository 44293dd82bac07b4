package db

import "strings"

// LikeEscape is the escape character declared by every generated LIKE.
const LikeEscape = '!'

var likeReplacer = strings.NewReplacer(
	string(LikeEscape), string(LikeEscape)+string(LikeEscape),
	"%", string(LikeEscape)+"%",
	"_", string(LikeEscape)+"_",
)

// EscapeLike escapes LIKE wildcards in s so it matches literally when the
// pattern is declared with ESCAPE '!'.
func EscapeLike(s string) string {
	return likeReplacer.Replace(s)
}
