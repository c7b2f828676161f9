package middleware

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

const (
	// HeaderUserID は認証済みユーザーIDを内部サービスに伝播するヘッダー。
	HeaderUserID = "X-User-Id"
	// HeaderUserRole は認証済みユーザーのロールを内部サービスに伝播するヘッダー。
	HeaderUserRole = "X-User-Role"

	// bearerPrefix はAuthorizationヘッダーのスキーム。大文字小文字を区別する。
	bearerPrefix = "Bearer "
	// contextKeyClaims はGinコンテキストにクレームを格納するキー。
	contextKeyClaims = "claims"
)

// ErrInvalidToken はトークンの署名・有効期限・形式のいずれかの検証に失敗したことを表す。
// 失敗理由はクライアントには区別して返さない。
var ErrInvalidToken = errors.New("トークンが無効です")

// Claims は検証済みトークンから取り出したユーザー属性。
// 値が無い場合はnullではなく空文字列になる。
type Claims struct {
	// Subject はユーザーの識別子。subクレーム、無ければidクレーム。
	Subject string
	// Role はユーザーのロール。
	Role string
}

// TokenVerifier はBearerトークンをHMAC秘密鍵で検証する。
// 秘密鍵は起動時に読み込まれ、以降は読み取り専用。
type TokenVerifier struct {
	secret []byte
	parser *jwt.Parser
}

// NewTokenVerifier は署名用秘密鍵からTokenVerifierを生成する。
func NewTokenVerifier(secret string) *TokenVerifier {
	return &TokenVerifier{
		secret: []byte(secret),
		parser: jwt.NewParser(jwt.WithValidMethods([]string{
			jwt.SigningMethodHS256.Alg(),
			jwt.SigningMethodHS384.Alg(),
			jwt.SigningMethodHS512.Alg(),
		})),
	}
}

// Verify はトークンを検証し、クレームを返す。
// 呼び出し側で "Bearer " プレフィックスを取り除いておくこと。
func (v *TokenVerifier) Verify(tokenString string) (Claims, error) {
	mapClaims := jwt.MapClaims{}
	token, err := v.parser.ParseWithClaims(tokenString, mapClaims, func(_ *jwt.Token) (any, error) {
		return v.secret, nil
	})
	if err != nil {
		return Claims{}, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}
	if !token.Valid {
		return Claims{}, ErrInvalidToken
	}

	subject, ok := claimString(mapClaims, "sub")
	if !ok {
		subject, _ = claimString(mapClaims, "id")
	}
	role, _ := claimString(mapClaims, "role")

	return Claims{Subject: subject, Role: role}, nil
}

// claimString はクレームを文字列として取り出す。
// クレームが存在しない、もしくはnullの場合はfalseを返す。
func claimString(claims jwt.MapClaims, key string) (string, bool) {
	v, ok := claims[key]
	if !ok || v == nil {
		return "", false
	}
	switch val := v.(type) {
	case string:
		return val, true
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64), true
	case bool:
		return strconv.FormatBool(val), true
	default:
		return fmt.Sprint(val), true
	}
}

// GenerateJWT はsubとroleを持つHS256署名のトークンを生成する。
// 発行は認証サービスの責務だが、開発時の動作確認やテストで使用する。
func GenerateJWT(secret, subject, role string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"sub": subject,
		"iat": now.Unix(),
		"exp": now.Add(ttl).Unix(),
	}
	if role != "" {
		claims["role"] = role
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		return "", fmt.Errorf("JWTトークンの署名に失敗: %w", err)
	}
	return signed, nil
}

// Authenticate はBearerトークンを検証するGinミドルウェアを返す。
//
// publicPrefixesのいずれかで始まるパスは認証なしで通過させる。
// それ以外のパスでは検証に成功したクレームをX-User-Id/X-User-Roleヘッダーに
// 無条件で上書きし、クライアントによるなりすましを防ぐ。
func Authenticate(verifier *TokenVerifier, publicPrefixes []string) gin.HandlerFunc {
	prefixes := append([]string(nil), publicPrefixes...)

	return func(c *gin.Context) {
		if isPublicPath(c.Request.URL.Path, prefixes) {
			// 公開パスでは識別ヘッダーを注入しないが、クライアント指定の値も転送しない
			c.Request.Header.Del(HeaderUserID)
			c.Request.Header.Del(HeaderUserRole)
			c.Next()
			return
		}

		tokenString, found := strings.CutPrefix(c.GetHeader("Authorization"), bearerPrefix)
		if !found || tokenString == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"statusCode": http.StatusUnauthorized,
				"message":    "Missing bearer token",
			})
			return
		}

		claims, err := verifier.Verify(tokenString)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"statusCode": http.StatusUnauthorized,
				"message":    "Invalid token",
			})
			return
		}

		c.Request.Header.Set(HeaderUserID, claims.Subject)
		c.Request.Header.Set(HeaderUserRole, claims.Role)
		c.Set(contextKeyClaims, claims)
		c.Next()
	}
}

// isPublicPath はパスが公開プレフィックスのいずれかで始まるかを判定する。
func isPublicPath(path string, prefixes []string) bool {
	for _, prefix := range prefixes {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}

// GetClaims はGinコンテキストからクレームを取得する。
// Authenticateミドルウェアで検証済みでない場合はfalseを返す。
func GetClaims(c *gin.Context) (Claims, bool) {
	v, ok := c.Get(contextKeyClaims)
	if !ok {
		return Claims{}, false
	}
	claims, ok := v.(Claims)
	return claims, ok
}
