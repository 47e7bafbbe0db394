package api

// @title Miaomiaowu Panel API
// @version v0.4.0
// @description API for the miaomiaowu subscription panel backend.

// @contact.name API Support
// @contact.url https://github.com/iluobei/miaomiaowu-sub001/issues

// @license.name MIT

// @host localhost:8998
// @BasePath /api
// @schemes http

// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
