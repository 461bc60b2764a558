package v1

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/vietanh2810/eventfinder-api/internal/api/handler/v1/response"
	"github.com/vietanh2810/eventfinder-api/internal/api/middleware"
	"github.com/vietanh2810/eventfinder-api/internal/domain"
	"github.com/vietanh2810/eventfinder-api/internal/service"
)

var errNoUserInContext = errors.New("no authenticated user")

func parseIDParam(ctx *gin.Context, name string) (uint, *response.Err) {
	id, err := strconv.ParseUint(ctx.Param(name), 10, 64)
	if err != nil || id == 0 {
		return 0, response.ErrBadRequest(fmt.Errorf("invalid %s %q", name, ctx.Param(name)))
	}

	return uint(id), nil
}

// getUserFromContext loads the user the auth middleware identified.
func getUserFromContext(ctx *gin.Context, svc UserService) (domain.User, *response.Err) {
	userID := ctx.GetUint(middleware.UserIDKey)
	if userID == 0 {
		return domain.User{}, response.ErrInvalidToken(errNoUserInContext)
	}

	user, err := svc.GetUser(ctx.Request.Context(), userID)
	if err != nil {
		if errors.Is(err, service.ErrUserNotFound) {
			return domain.User{}, response.ErrInvalidToken(err)
		}

		return domain.User{}, response.ErrInternalServerError(fmt.Errorf("getUserFromContext -> svc.GetUser -> %w", err))
	}

	return user, nil
}

// identityFromContext is like getUserFromContext but falls back to an
// anonymous identity instead of failing.
func identityFromContext(ctx *gin.Context, svc UserService) (domain.Identity, *response.Err) {
	if ctx.GetUint(middleware.UserIDKey) == 0 {
		return domain.Identity{}, nil
	}

	user, respErr := getUserFromContext(ctx, svc)
	if respErr != nil {
		if respErr.StatusCode >= 500 {
			return domain.Identity{}, respErr
		}
		return domain.Identity{}, nil
	}

	return domain.IdentityOf(user), nil
}
