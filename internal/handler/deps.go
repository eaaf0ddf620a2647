package handler

import (
	"wnschat/internal/app/chat"
	"wnschat/internal/configs"
)

// AppDeps holds what the operator API and the WebSocket transport need.
type AppDeps struct {
	Server *chat.Server
	Config *configs.AppConfig
}
