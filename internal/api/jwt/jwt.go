package jwt

import (
	"errors"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

type JWTClaim struct {
	UserId     uint   `json:"user_id"`
	ExternalId string `json:"external_id"`
	jwt.RegisteredClaims
}

const JWT_EXPIRATION = 24 * 7 * time.Hour

func GenerateJWT(secret []byte, userId uint, externalId string) (token string, err error) {
	now := time.Now()
	var claims = JWTClaim{
		userId,
		externalId,
		jwt.RegisteredClaims{
			Subject:   strconv.FormatUint(uint64(userId), 10),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(JWT_EXPIRATION)),
		},
	}

	resToken := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signedToken, err := resToken.SignedString(secret)
	if err != nil {
		return "", err
	}
	return signedToken, nil
}

func ValidateToken(secret []byte, signedToken string) (userId uint, externalId string, err error) {
	token, err := jwt.ParseWithClaims(signedToken, &JWTClaim{}, func(t *jwt.Token) (interface{}, error) { return secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return 0, "", err
	}
	claims, ok := token.Claims.(*JWTClaim)
	if !ok {
		return 0, "", errors.New("error parsing claims")
	}
	if claims.UserId == 0 || claims.ExternalId == "" {
		return 0, "", errors.New("malformed data")
	}

	return claims.UserId, claims.ExternalId, nil
}
