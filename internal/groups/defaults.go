package groups

// defaultGroupsYAML is used when no group file is configured or the file is
// missing or empty.
const defaultGroupsYAML = `
groups:
  walkability and street vitality:
    words:
      - 步行性
      - 可步行性
      - walkability
      - 街道活力
      - street vitality
      - 行人友好
      - pedestrian friendly
      - 步行指数
      - walkability index
    auto_learned: []
    weight: 1.2
  public and open space:
    words:
      - 公共空间
      - public space
      - 开放空间
      - open space
      - 城市广场
      - urban plaza
      - 街道广场
      - pocket plaza
    auto_learned: []
    weight: 1.0
  transit-oriented development:
    words:
      - TOD
      - transit-oriented development
      - 轨道导向开发
      - 公共交通导向开发
      - 交通枢纽
      - 站城一体
    auto_learned: []
    weight: 1.1
  streetscape perception:
    words:
      - 街景
      - street view
      - 街景图像
      - streetscape imagery
      - 视觉感知
      - visual perception
      - 视觉质量
      - visual quality
      - 街道空间围合度
      - enclosure
    auto_learned: []
    weight: 1.0
`
