package notion

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
)

type DatabaseKind string

const (
	Papers  DatabaseKind = "papers"
	Reviews DatabaseKind = "reviews"
	Emails  DatabaseKind = "emails"
	Billing DatabaseKind = "billing"
)

// Property names shared with the syncer.
const (
	PropPaperTitle  = "论文标题"
	PropManuscript  = "稿件编号"
	PropVenueType   = "类型"
	PropVenue       = "期刊/会议"
	PropStatus      = "状态"
	PropLastUpdate  = "最后更新"
	PropNotes       = "备注"
	PropJournal     = "期刊"
	PropDeadline    = "截止日期"
	PropSubject     = "标题"
	PropFrom        = "发件人"
	PropAccount     = "邮箱"
	PropCategory    = "分类"
	PropImportance  = "重要程度"
	PropNeedsAction = "需处理"
	PropDate        = "日期"
	PropSummary     = "摘要"
	PropName        = "名称"
	PropBillType    = "类型"
	PropAmount      = "当期金额"
	PropPeriod      = "账期"
	PropDueDate     = "还款日"
)

type schema struct {
	title      string
	search     string
	properties func() map[string]any
}

var schemas = map[DatabaseKind]schema{
	Papers: {
		title:  "📄 论文投稿管理",
		search: "论文投稿",
		properties: func() map[string]any {
			return map[string]any{
				PropPaperTitle: empty("title"),
				PropManuscript: empty("rich_text"),
				PropVenueType:  selectSchema(option{"期刊", "blue"}, option{"会议", "purple"}),
				PropVenue:      empty("rich_text"),
				PropStatus: selectSchema(
					option{"已投稿", "blue"}, option{"审稿中", "yellow"}, option{"小修", "orange"},
					option{"大修", "red"}, option{"已接收", "green"}, option{"被拒稿", "gray"},
				),
				PropLastUpdate: empty("date"),
				PropNotes:      empty("rich_text"),
			}
		},
	},
	Reviews: {
		title:  "📝 审稿任务管理",
		search: "审稿任务",
		properties: func() map[string]any {
			return map[string]any{
				PropPaperTitle: empty("title"),
				PropJournal:    empty("rich_text"),
				PropStatus: selectSchema(
					option{"待接受", "yellow"}, option{"已接受", "blue"},
					option{"审稿中", "orange"}, option{"已提交", "green"},
				),
				PropDeadline: empty("date"),
				PropNotes:    empty("rich_text"),
			}
		},
	},
	Emails: {
		title:  "📬 邮件整理",
		search: "邮件整理",
		properties: func() map[string]any {
			return map[string]any{
				PropSubject: empty("title"),
				PropFrom:    empty("rich_text"),
				PropAccount: selectSchema(option{"QQ邮箱", "blue"}, option{"PKU邮箱", "red"}),
				PropCategory: selectSchema(
					option{"学术", "purple"}, option{"审稿", "orange"}, option{"账单", "green"},
					option{"通知", "blue"}, option{"考试", "pink"}, option{"个人", "yellow"},
				),
				PropImportance: selectSchema(
					option{"5-紧急", "red"}, option{"4-重要", "orange"}, option{"3-一般", "yellow"},
					option{"2-可选", "blue"}, option{"1-低", "gray"},
				),
				PropNeedsAction: empty("checkbox"),
				PropVenue:       empty("rich_text"),
				PropDate:        empty("date"),
				PropSummary:     empty("rich_text"),
			}
		},
	},
	Billing: {
		title:  "💳 账单管理",
		search: "账单管理",
		properties: func() map[string]any {
			return map[string]any{
				PropName: empty("title"),
				PropBillType: selectSchema(
					option{"信用卡", "blue"}, option{"会员订阅", "purple"}, option{"水电燃气", "yellow"},
					option{"保险", "green"}, option{"其他", "gray"},
				),
				PropAmount:  map[string]any{"number": map[string]any{"format": "number"}},
				PropPeriod:  empty("rich_text"),
				PropDueDate: empty("date"),
				PropStatus:  selectSchema(option{"待还款", "red"}, option{"已还款", "green"}),
				PropNotes:   empty("rich_text"),
			}
		},
	},
}

// MetadataStore persists resolved database ids between runs.
type MetadataStore interface {
	GetMetadata(key string) (*string, error)
	SetMetadata(key, value string) error
}

var ErrNoParentPage = errors.New("notion: NOTION_PARENT_PAGE_ID not set")

// Databases resolves each logical database to a Notion id: memory, then the
// local metadata table, then a workspace search, then creation under the
// parent page.
type Databases struct {
	client       *Client
	parentPageID string
	store        MetadataStore
	log          zerolog.Logger

	mu    sync.Mutex
	cache map[DatabaseKind]string
}

func NewDatabases(client *Client, parentPageID string, store MetadataStore, log zerolog.Logger) *Databases {
	return &Databases{
		client:       client,
		parentPageID: parentPageID,
		store:        store,
		log:          log.With().Str("component", "notion-databases").Logger(),
		cache:        map[DatabaseKind]string{},
	}
}

func metadataKey(kind DatabaseKind) string {
	return "notion.db." + string(kind)
}

func (d *Databases) Client() *Client {
	return d.client
}

func (d *Databases) ID(ctx context.Context, kind DatabaseKind) (string, error) {
	sc, ok := schemas[kind]
	if !ok {
		return "", fmt.Errorf("notion: unknown database %q", kind)
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if id := d.cache[kind]; id != "" {
		return id, nil
	}

	if d.store != nil {
		stored, err := d.store.GetMetadata(metadataKey(kind))
		if err != nil {
			d.log.Warn().Err(err).Str("database", string(kind)).Msg("read cached database id")
		} else if stored != nil && *stored != "" {
			d.cache[kind] = *stored
			return *stored, nil
		}
	}

	id, res := d.client.FindDatabase(ctx, sc.search)
	if id == "" && res.Kind != FailureNone {
		return "", fmt.Errorf("search %s database: %w", kind, res.Err)
	}
	if id == "" {
		if d.parentPageID == "" {
			return "", ErrNoParentPage
		}
		created := d.client.CreateDatabase(ctx, d.parentPageID, sc.title, sc.properties())
		if !created.OK() {
			return "", fmt.Errorf("create %s database: %s", kind, created.ErrorMessage())
		}
		id = created.ID()
		d.log.Info().Str("database", string(kind)).Str("id", id).Msg("created notion database")
	}

	d.remember(kind, id)
	return id, nil
}

// Forget drops a cached id, e.g. after the database was deleted remotely.
func (d *Databases) Forget(kind DatabaseKind) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.cache, kind)
	if d.store != nil {
		if err := d.store.SetMetadata(metadataKey(kind), ""); err != nil {
			d.log.Warn().Err(err).Str("database", string(kind)).Msg("clear cached database id")
		}
	}
}

func (d *Databases) remember(kind DatabaseKind, id string) {
	d.cache[kind] = id
	if d.store == nil {
		return
	}
	if err := d.store.SetMetadata(metadataKey(kind), id); err != nil {
		d.log.Warn().Err(err).Str("database", string(kind)).Msg("persist database id")
	}
}
