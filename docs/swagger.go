package docs

// @title 育儿小贴士服务 API
// @version 1.0
// @description 面向0-5岁孩子家长的个性化育儿小贴士检索与生成服务
// @termsOfService http://swagger.io/terms/

// @contact.name API Support
// @contact.url http://www.swagger.io/support
// @contact.email support@swagger.io

// @license.name Apache 2.0
// @license.url http://www.apache.org/licenses/LICENSE-2.0.html

// @host localhost:8080
// @BasePath /
// @schemes http https
