package api

import (
	"fmt"
	"net/http"
	"os"
	"path/filepath"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"gopkg.in/yaml.v2"
)

// SwaggerInfo holds the swagger specification info
var SwaggerInfo = struct {
	Version     string
	Host        string
	BasePath    string
	Title       string
	Description string
}{
	Version:     "1.0.0",
	Host:        "localhost:8080",
	BasePath:    "/api/v1",
	Title:       "SocialFi Engine API",
	Description: "Bonding-curve share trading on social content",
}

// setupSwagger configures Swagger documentation routes
func setupSwagger(r *gin.Engine) {
	// Serve the static OpenAPI YAML file
	r.GET("/api/v1/openapi.yaml", func(c *gin.Context) {
		yamlPath := filepath.Join("docs", "swagger.yaml")
		yamlData, err := os.ReadFile(yamlPath)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{
				"error": "Failed to read OpenAPI specification",
			})
			return
		}
		c.Data(http.StatusOK, "application/yaml", yamlData)
	})

	// Serve the JSON rendering of the OpenAPI document
	r.GET("/api/v1/openapi.json", func(c *gin.Context) {
		yamlPath := filepath.Join("docs", "swagger.yaml")
		yamlData, err := os.ReadFile(yamlPath)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{
				"error": "Failed to read OpenAPI specification",
			})
			return
		}

		var spec interface{}
		if err := yaml.Unmarshal(yamlData, &spec); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{
				"error": "Failed to parse OpenAPI specification",
			})
			return
		}
		// yaml.v2 decodes mappings with interface{} keys, which the JSON
		// encoder rejects; re-key everything with strings first.
		c.JSON(http.StatusOK, stringifyYAMLKeys(spec))
	})

	// Serve Swagger UI
	r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler, ginSwagger.URL("/api/v1/openapi.json")))

	r.GET("/docs", func(c *gin.Context) {
		c.Redirect(http.StatusMovedPermanently, "/docs/")
	})
}

func stringifyYAMLKeys(v interface{}) interface{} {
	switch val := v.(type) {
	case map[interface{}]interface{}:
		m := make(map[string]interface{}, len(val))
		for k, item := range val {
			m[fmt.Sprintf("%v", k)] = stringifyYAMLKeys(item)
		}
		return m
	case []interface{}:
		for i, item := range val {
			val[i] = stringifyYAMLKeys(item)
		}
		return val
	default:
		return v
	}
}
