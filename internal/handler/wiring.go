package handler

import (
	"github.com/hitoshi/pageinsights/internal/auth"
	"github.com/hitoshi/pageinsights/internal/insights"
	"github.com/hitoshi/pageinsights/internal/security"
	"github.com/hitoshi/pageinsights/internal/user"
)

// app パッケージが渡す実装がハンドラー側のインターフェースを満たすことを保証する。
var (
	_ AuthServiceInterface = (*auth.Service)(nil)
	_ UserServiceInterface = (*user.Service)(nil)
	_ ControllerSource     = (*insights.Registry)(nil)
	_ TextSanitizer        = (security.TextSanitizerService)(nil)
	_ URLValidator         = (security.SSRFGuardService)(nil)
)
