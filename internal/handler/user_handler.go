package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/shinyyama/demart-backend/internal/service"
)

type UserHandler struct {
	users service.UserDirectory
}

func NewUserHandler(users service.UserDirectory) *UserHandler {
	return &UserHandler{users: users}
}

type PublicUserResponse struct {
	UID         string  `json:"uid"`
	DisplayName string  `json:"displayName"`
	PhotoURL    *string `json:"photoURL"`
}

func (h *UserHandler) GetPublic(c echo.Context) error {
	uid := c.Param("uid")
	if uid == "" || service.ReservedUID(uid) {
		return c.JSON(http.StatusBadRequest, NewErrorResponse("bad_request", "invalid uid"))
	}
	if h.users == nil {
		// no directory configured: every id is known only by itself
		return c.JSON(http.StatusOK, PublicUserResponse{UID: uid, DisplayName: uid})
	}
	user, err := h.users.Lookup(c.Request().Context(), uid)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, PublicUserResponse{
		UID:         user.UID,
		DisplayName: user.DisplayName,
		PhotoURL:    strPtrOrNil(user.PhotoURL),
	})
}
