package main

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/google/uuid"

	"homematch/backend/internal/config"
	"homematch/backend/internal/domain"
	"homematch/backend/internal/storage/postgres"
)

// main 向配置的数据库写入贷款方或房源记录。
//
// 贷款方不走注册流程，由运营通过本工具录入；房源录入仅用于
// 开发与演示环境，生产环境房源数据由主站同步。
func main() {
	if len(os.Args) < 2 {
		usage()
	}

	cfg, err := config.Load()
	if err != nil {
		fatal("加载配置失败: %v", err)
	}
	if cfg.Database.Type == "" || cfg.Database.DSN == "" {
		fatal("未配置数据库，请设置 HOMEMATCH_DATABASE_TYPE 和 HOMEMATCH_DATABASE_DSN")
	}

	store, err := postgres.NewStore(&cfg.Database)
	if err != nil {
		fatal("连接数据库失败: %v", err)
	}
	defer store.Close()

	switch os.Args[1] {
	case "lender":
		seedLender(store, os.Args[2:])
	case "listing":
		seedListing(store, os.Args[2:])
	default:
		usage()
	}
}

func seedLender(store *postgres.Store, args []string) {
	if len(args) < 2 {
		usage()
	}
	email, displayName := args[0], args[1]
	company := ""
	if len(args) >= 3 {
		company = args[2]
	}

	if err := domain.ValidateEmail(email); err != nil {
		fatal("贷款方邮箱无效: %v", err)
	}

	// 同邮箱已存在时更新显示信息，不产生第二条记录
	if existing, err := store.GetLenderByEmail(email); err == nil {
		existing.DisplayName = displayName
		existing.Company = company
		existing.IsActive = true
		existing.UpdatedAt = time.Now()
		if err := store.SaveLender(existing); err != nil {
			fatal("更新贷款方失败: %v", err)
		}
		fmt.Printf("✓ 贷款方已更新: %s (%s)\n", displayName, existing.ID)
		return
	}

	now := time.Now()
	lender := &domain.Lender{
		ID:          uuid.NewString(),
		Email:       domain.NormalizeEmail(email),
		DisplayName: displayName,
		Company:     company,
		IsActive:    true,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := store.SaveLender(lender); err != nil {
		fatal("创建贷款方失败: %v", err)
	}
	fmt.Printf("✓ 贷款方已创建: %s (%s)\n", displayName, lender.ID)
}

func seedListing(store *postgres.Store, args []string) {
	if len(args) < 3 {
		usage()
	}
	title, propertyType := args[0], args[1]
	price, err := strconv.ParseInt(args[2], 10, 64)
	if err != nil || price <= 0 {
		fatal("价格必须是正整数: %q", args[2])
	}
	address := ""
	if len(args) >= 4 {
		address = args[3]
	}

	now := time.Now()
	listing := &domain.Listing{
		ID:           uuid.NewString(),
		Title:        title,
		PropertyType: propertyType,
		Address:      address,
		Price:        price,
		IsActive:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := store.SaveListing(listing); err != nil {
		fatal("创建房源失败: %v", err)
	}
	fmt.Printf("✓ 房源已创建: %s (%s)\n", title, listing.ID)
}

func usage() {
	fmt.Println("用法:")
	fmt.Println("  seed lender <email> <display-name> [company]")
	fmt.Println("  seed listing <title> <property-type> <price> [address]")
	os.Exit(1)
}

func fatal(format string, args ...interface{}) {
	fmt.Printf("错误: "+format+"\n", args...)
	os.Exit(1)
}
