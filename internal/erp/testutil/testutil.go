package testutil

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/bitfantasy/nimo-mes/internal/erp/entity"
	"github.com/bitfantasy/nimo-mes/internal/middleware"
	"github.com/gin-gonic/gin"
	"github.com/glebarez/sqlite"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const JWTSecret = "nimo-mes-test-secret"

// SetupTestDB 每个测试一个独立的内存sqlite库，单连接使写入串行
func SetupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("Failed to get test database: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)
	sqlDB.SetConnMaxLifetime(0)

	if err := entity.AutoMigrate(db); err != nil {
		t.Fatalf("Failed to migrate test tables: %v", err)
	}
	t.Cleanup(func() {
		sqlDB.Close()
	})
	return db
}

// SetupRouter gin测试路由
func SetupRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(gin.Recovery())
	return r
}

// AuthGroup 带JWT认证的路由组
func AuthGroup(r *gin.Engine, path string) *gin.RouterGroup {
	return r.Group(path, middleware.JWTAuth(JWTSecret))
}

// GenerateTestToken 生成测试token
func GenerateTestToken(userID, name string, roles, permissions []string) string {
	if roles == nil {
		roles = []string{}
	}
	if permissions == nil {
		permissions = []string{}
	}
	now := time.Now()
	claims := jwt.MapClaims{
		"sub":   userID,
		"uid":   userID,
		"name":  name,
		"roles": roles,
		"perms": permissions,
		"iss":   "nimo-mes",
		"iat":   now.Unix(),
		"exp":   now.Add(time.Hour).Unix(),
		"jti":   fmt.Sprintf("test-jti-%d", now.UnixNano()),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, _ := token.SignedString([]byte(JWTSecret))
	return tokenString
}

// DefaultTestToken 拥有全部权限的计划员
func DefaultTestToken() string {
	return GenerateTestToken("planner-001", "Test Planner", []string{"planner"}, []string{"*"})
}

// DoRequest 对测试路由发起请求
func DoRequest(r *gin.Engine, method, path string, body interface{}, token string) *httptest.ResponseRecorder {
	reqBody := bytes.NewBuffer(nil)
	if body != nil {
		b, _ := json.Marshal(body)
		reqBody = bytes.NewBuffer(b)
	}
	req, _ := http.NewRequest(method, path, reqBody)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

// ParseResponse 解析 {code, message, data}
func ParseResponse(w *httptest.ResponseRecorder) map[string]interface{} {
	var result map[string]interface{}
	json.Unmarshal(w.Body.Bytes(), &result)
	return result
}

// SeedRawItem 创建原料，变体ID为空时自动生成
func SeedRawItem(t *testing.T, db *gorm.DB, code string, qty float64, variants ...entity.RawItemVariant) *entity.RawItem {
	t.Helper()
	item := &entity.RawItem{
		ID:       uuid.New().String(),
		Code:     code,
		Name:     "原料 " + code,
		Unit:     "m",
		Quantity: qty,
		UnitCost: decimal.NewFromFloat(2.5),
		Version:  1,
	}
	for _, v := range variants {
		if v.ID == "" {
			v.ID = uuid.New().String()
		}
		v.RawItemID = item.ID
		item.Variants = append(item.Variants, v)
	}
	if err := db.Create(item).Error; err != nil {
		t.Fatalf("Failed to seed raw item: %v", err)
	}
	return item
}

// MaterialLine BOM行简写
type MaterialLine struct {
	Item        *entity.RawItem
	PerUnit     float64
	VariantSKU  string // 为空表示通用行
	PinVariant  string
	Combination entity.Combination
}

// SeedProduct 创建产品，含变体、BOM行和工序
func SeedProduct(t *testing.T, db *gorm.DB, code string, variants []entity.ProductVariant, lines []MaterialLine, opTypes ...string) *entity.Product {
	t.Helper()
	p := &entity.Product{ID: uuid.New().String(), Code: code, Name: "产品 " + code, CreatedBy: "seed"}
	skuToID := map[string]string{}
	for _, v := range variants {
		if v.ID == "" {
			v.ID = uuid.New().String()
		}
		v.ProductID = p.ID
		if v.SKU != "" {
			skuToID[v.SKU] = v.ID
		}
		p.Variants = append(p.Variants, v)
	}
	for i, l := range lines {
		variantID := ""
		if l.VariantSKU != "" {
			variantID = skuToID[l.VariantSKU]
		}
		p.Materials = append(p.Materials, entity.ProductMaterial{
			ID:                 uuid.New().String(),
			ProductID:          p.ID,
			VariantID:          variantID,
			Sequence:           i + 1,
			RawItemID:          l.Item.ID,
			RawItemCode:        l.Item.Code,
			RawItemName:        l.Item.Name,
			QuantityPerUnit:    l.PerUnit,
			Unit:               l.Item.Unit,
			UnitCost:           l.Item.UnitCost,
			RawItemVariantID:   l.PinVariant,
			RawItemCombination: l.Combination,
		})
	}
	for i, op := range opTypes {
		p.Operations = append(p.Operations, entity.ProductOperation{
			ID:               uuid.New().String(),
			ProductID:        p.ID,
			Sequence:         i + 1,
			OperationType:    op,
			MachineType:      op + "-machine",
			EstimatedSeconds: 60 * (i + 1),
		})
	}
	if err := db.Create(p).Error; err != nil {
		t.Fatalf("Failed to seed product: %v", err)
	}
	return p
}

// Attrs 构造属性集合 Attrs("color", "red", "size", "M")
func Attrs(kv ...string) entity.Attributes {
	var attrs entity.Attributes
	for i := 0; i+1 < len(kv); i += 2 {
		attrs = append(attrs, entity.Attribute{Name: kv[i], Value: kv[i+1]})
	}
	return attrs
}

// Reload 重新读取原料（含变体）
func Reload(t *testing.T, db *gorm.DB, id string) *entity.RawItem {
	t.Helper()
	var item entity.RawItem
	if err := db.Preload("Variants").Where("id = ?", id).First(&item).Error; err != nil {
		t.Fatalf("Failed to reload raw item: %v", err)
	}
	return &item
}
