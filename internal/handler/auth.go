package handler

import (
	"errors"
	"strings"

	"hostelsystem/internal/config"
	"hostelsystem/internal/service"
	"hostelsystem/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

const actorKey = "actor"

// Claims 身份服务签发的访问令牌，本服务只校验不签发
type Claims struct {
	UserID int64  `json:"uid"`
	Role   string `json:"role"` // owner | student
	jwt.RegisteredClaims
}

type TokenParser struct {
	secret []byte
	issuer string
}

func NewTokenParser(cfg *config.AuthConfig) *TokenParser {
	return &TokenParser{secret: []byte(cfg.JWTSecret), issuer: cfg.JWTIssuer}
}

func (p *TokenParser) Parse(tokenStr string) (*Claims, error) {
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if p.issuer != "" {
		opts = append(opts, jwt.WithIssuer(p.issuer))
	}

	claims := &Claims{}
	_, err := jwt.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (any, error) {
		return p.secret, nil
	}, opts...)
	if err != nil {
		return nil, err
	}
	if claims.UserID <= 0 || (claims.Role != service.RoleOwner && claims.Role != service.RoleStudent) {
		return nil, errors.New("invalid claims")
	}
	return claims, nil
}

// AuthMiddleware 校验 Bearer 令牌并把调用方写入上下文
func AuthMiddleware(parser *TokenParser) gin.HandlerFunc {
	return func(c *gin.Context) {
		ah := c.GetHeader("Authorization")
		if ah == "" || !strings.HasPrefix(strings.ToLower(ah), "bearer ") {
			response.Unauthorized(c, "缺少访问令牌")
			return
		}

		claims, err := parser.Parse(strings.TrimSpace(ah[len("Bearer "):]))
		if err != nil {
			response.Unauthorized(c, "访问令牌无效")
			return
		}

		c.Set(actorKey, service.Actor{UserID: claims.UserID, Role: claims.Role})
		c.Next()
	}
}

// RequireRole 只允许指定角色访问
func RequireRole(role string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if actorFrom(c).Role != role {
			c.AbortWithStatusJSON(403, response.Response{
				Code:    response.CodeForbidden,
				Message: "无权操作",
			})
			return
		}
		c.Next()
	}
}

func actorFrom(c *gin.Context) service.Actor {
	if v, ok := c.Get(actorKey); ok {
		if a, ok := v.(service.Actor); ok {
			return a
		}
	}
	return service.Actor{}
}
